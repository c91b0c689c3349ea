package store

import (
	"context"
	"errors"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/sentinel"
)

// Backend is the method set shared by every store.
type Backend interface {
	Save(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, validationID string) (*models.Report, error)
	Recent(ctx context.Context, limit int) ([]*models.Report, error)
}

// Chain writes to every backend and reads from the first that has the
// report. Order backends fastest first; Recent is served by the last one,
// which is expected to be the most durable.
type Chain struct {
	backends []Backend
}

func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// Save attempts every backend and joins the failures.
func (c *Chain) Save(ctx context.Context, report *models.Report) error {
	var errs []error
	for _, b := range c.backends {
		if err := b.Save(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) FindByID(ctx context.Context, validationID string) (*models.Report, error) {
	var lastErr error = sentinel.ErrNotFound
	for _, b := range c.backends {
		report, err := b.FindByID(ctx, validationID)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			lastErr = err
		}
	}
	return nil, lastErr
}

func (c *Chain) Recent(ctx context.Context, limit int) ([]*models.Report, error) {
	if len(c.backends) == 0 {
		return []*models.Report{}, nil
	}
	return c.backends[len(c.backends)-1].Recent(ctx, limit)
}
