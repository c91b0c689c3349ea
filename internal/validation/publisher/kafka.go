// Package publisher streams finalized verdicts to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"triplecheck/internal/platform/config"
	"triplecheck/internal/validation/models"
)

// Verdict is the message value. It carries the summary a storage or sync
// consumer needs; the full report stays in the report store.
type Verdict struct {
	ValidationID      string        `json:"validationId"`
	DataType          string        `json:"dataType"`
	Level             models.Level  `json:"level"`
	OverallStatus     models.Status `json:"overallStatus"`
	OverallScore      float64       `json:"overallScore"`
	OverallConfidence float64       `json:"overallConfidence"`
	MeetsLevel        bool          `json:"meetsLevel"`
	StageStatuses     []string      `json:"stageStatuses"`
	FinishedAt        *time.Time    `json:"finishedAt"`
}

// NewVerdict summarizes a finalized report.
func NewVerdict(r *models.Report) Verdict {
	statuses := make([]string, 0, 3)
	for _, step := range r.Steps() {
		if step == nil {
			statuses = append(statuses, string(models.StatusPending))
			continue
		}
		statuses = append(statuses, string(step.Status))
	}
	return Verdict{
		ValidationID:      r.ValidationID,
		DataType:          r.DataType,
		Level:             r.Level,
		OverallStatus:     r.OverallStatus,
		OverallScore:      r.OverallScore,
		OverallConfidence: r.OverallConfidence,
		MeetsLevel:        r.MeetsLevel(),
		StageStatuses:     statuses,
		FinishedAt:        r.EndTime,
	}
}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces one record per verdict, keyed by validation id so
// re-validations of the same content land on the same partition.
type KafkaPublisher struct {
	client producer
	topic  string
}

const defaultDeliveryTimeout = 10 * time.Second

// NewKafkaPublisher connects a franz-go client to the configured brokers.
// Records that cannot be acked within the delivery timeout fail instead of
// waiting for the brokers to come back.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, report *models.Report) error {
	value, err := json.Marshal(NewVerdict(report))
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(report.ValidationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "data_type", Value: []byte(report.DataType)},
			{Key: "status", Value: []byte(report.OverallStatus)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce verdict %s: %w", report.ValidationID, err)
	}
	return nil
}

// Close releases the client. ProduceSync has already waited for acks.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
