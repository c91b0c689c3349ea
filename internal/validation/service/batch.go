package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"triplecheck/internal/validation/consensus"
	"triplecheck/internal/validation/models"
	audit "triplecheck/pkg/platform/audit"
)

// ValidateBatch validates every submission with at most MaxConcurrency in
// flight. Reports come back in input order. A submission that panics, or
// does not finish before the batch deadline, gets a failed report; the rest
// of the batch is unaffected.
//
// Sink writes run after a submission frees its slot and are awaited only
// until the deadline; later writes finish in the background under the sink
// timeout.
func (s *Service) ValidateBatch(ctx context.Context, subs []models.Submission) models.BatchSummary {
	batchID := uuid.NewString()
	s.metrics.ObserveBatchSize(len(subs))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "validation.batch", trace.WithAttributes(
		attribute.String("batch_id", batchID),
		attribute.Int("size", len(subs)),
	))
	defer span.End()

	if s.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}

	start := time.Now()
	reports := make([]*models.Report, len(subs))
	sem := semaphore.NewWeighted(int64(s.maxConcurrency))
	var evaluated, recorded sync.WaitGroup

	recordAsync := func(report *models.Report, action audit.Action) {
		recorded.Add(1)
		go func() {
			defer recorded.Done()
			s.record(ctx, report, action, batchID)
		}()
	}

	for i, sub := range subs {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(subs); j++ {
				reports[j] = s.unfinished(ctx, subs[j], err, batchID)
				recordAsync(reports[j], audit.ActionValidationTimedOut)
			}
			break
		}
		evaluated.Add(1)
		go func() {
			defer evaluated.Done()
			report, action := s.validateWithin(ctx, sub, batchID)
			sem.Release(1)
			reports[i] = report
			recordAsync(report, action)
		}()
	}
	evaluated.Wait()

	summary := models.Summarize(reports)
	span.SetAttributes(
		attribute.Int("passed", summary.Passed),
		attribute.Int("failed", summary.Failed),
	)
	s.logger.InfoContext(ctx, "batch completed",
		"batch_id", batchID,
		"total", summary.Total,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"pass_rate", summary.PassRate,
		"duration", time.Since(start),
	)
	if s.auditPublisher != nil {
		recorded.Add(1)
		go func() {
			defer recorded.Done()
			s.emitBatchCompleted(ctx, batchID, summary)
		}()
	}
	s.awaitSinks(ctx, &recorded, batchID)
	return summary
}

func (s *Service) emitBatchCompleted(ctx context.Context, batchID string, summary models.BatchSummary) {
	ctx, cancel := s.sinkContext(ctx)
	defer cancel()
	event := audit.Event{
		BatchID:  batchID,
		Action:   audit.ActionBatchCompleted,
		Decision: fmt.Sprintf("%d/%d passed", summary.Passed, summary.Total),
		Score:    summary.PassRate,
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "batch_id", batchID, "error", err)
	}
}

// awaitSinks waits for the batch's sink writes, or for the batch deadline,
// whichever comes first.
func (s *Service) awaitSinks(ctx context.Context, recorded *sync.WaitGroup, batchID string) {
	done := make(chan struct{})
	go func() {
		recorded.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "batch deadline reached with sink writes pending", "batch_id", batchID)
	}
}

// validateWithin runs one submission and stops waiting for it when ctx is
// done. An abandoned pipeline finishes in the background and its result is
// discarded.
func (s *Service) validateWithin(ctx context.Context, sub models.Submission, batchID string) (*models.Report, audit.Action) {
	type outcome struct {
		report *models.Report
		action audit.Action
	}
	if err := ctx.Err(); err != nil {
		return s.unfinished(ctx, sub, err, batchID), audit.ActionValidationTimedOut
	}
	done := make(chan outcome, 1)
	go func() {
		report, action := s.evaluateSafely(ctx, sub, batchID)
		done <- outcome{report: report, action: action}
	}()

	select {
	case out := <-done:
		return out.report, out.action
	case <-ctx.Done():
		return s.unfinished(ctx, sub, ctx.Err(), batchID), audit.ActionValidationTimedOut
	}
}

// evaluateSafely turns a panic anywhere in the pipeline into a failed report.
func (s *Service) evaluateSafely(ctx context.Context, sub models.Submission, batchID string) (report *models.Report, action audit.Action) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "validation panicked",
				"batch_id", batchID,
				"data_type", sub.DataType,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			report = s.failedReport(sub, fmt.Sprintf("validation aborted: %v", r))
			action = audit.ActionValidationAborted
		}
	}()
	return s.evaluate(ctx, sub), audit.ActionValidationCompleted
}

func (s *Service) unfinished(ctx context.Context, sub models.Submission, cause error, batchID string) *models.Report {
	reason := "validation cancelled before completion"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "batch deadline exceeded before validation completed"
	}
	report := s.failedReport(sub, reason)
	s.logger.WarnContext(ctx, reason, "batch_id", batchID, "validation_id", report.ValidationID)
	return report
}

// failedReport builds a finalized report whose three stages all failed with
// message. It must not panic: it runs on the recovery path.
func (s *Service) failedReport(sub models.Submission, message string) *models.Report {
	now := s.clock()
	level := sub.Level
	if level == "" {
		level = models.LevelStrict
	}
	id := safeValidationID(sub, now)
	report := models.NewReport(id, sub.DataType, level, now)
	s.aggregator.Finalize(report,
		consensus.FailedStep(models.StepSchema, message, now),
		consensus.FailedStep(models.StepCrossReference, message, now),
		consensus.FailedStep(models.StepExternal, message, now),
		now,
	)
	return report
}

func safeValidationID(sub models.Submission, now time.Time) (id string) {
	defer func() {
		if recover() != nil {
			id = "val_" + now.UTC().Format("20060102150405") + "_" + uuid.NewString()[:8]
		}
	}()
	return models.NewValidationID(sub.Payload(), now)
}
