package pseudonym

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor purges expired mappings on an interval until its context ends.
type Janitor struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a janitor. A non-positive interval defaults to an hour.
func NewJanitor(service *Service, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{service: service, interval: interval, logger: logger.Named("janitor")}
}

// Run purges once immediately, then on every tick. It returns when ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.service.Purge(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn("purging expired mappings failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		j.logger.Info("purged expired mappings", zap.Int64("count", n))
	}
}
