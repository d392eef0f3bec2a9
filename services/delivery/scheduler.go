package delivery

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/task"
)

const sweepBatchSize = 200

// Scheduler periodically sweeps due delivery rows back onto the queue. It is
// the safety net behind the post-commit dispatch: rows whose enqueue was lost,
// whose worker crashed mid-claim, or whose backoff has elapsed all come due
// here.
type Scheduler struct {
	db       *gorm.DB
	enqueuer task.Enqueuer
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(db *gorm.DB, enqueuer task.Enqueuer, cfg *config.Config) *Scheduler {
	interval := cfg.Webhook.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		db:       db,
		enqueuer: enqueuer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pollLoop(ctx)
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				zap.L().Error("delivery sweep failed", zap.Error(err))
			}
		}
	}
}

// sweep enqueues every attempt whose retry time has come due. Enqueueing an
// attempt that another worker already claimed is harmless: the claim update
// will miss and the task becomes a no-op.
func (s *Scheduler) sweep(ctx context.Context) error {
	var due []Attempt
	err := s.db.WithContext(ctx).
		Select("id", "tenant_id").
		Where("status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			[]AttemptStatus{StatusPending, StatusFailed}, time.Now()).
		Order("next_retry_at asc").
		Limit(sweepBatchSize).
		Find(&due).Error
	if err != nil {
		return err
	}

	for _, attempt := range due {
		t, err := NewDeliverTask(attempt.ID, attempt.TenantID)
		if err != nil {
			zap.L().Error("build deliver task", zap.String("delivery_id", attempt.ID), zap.Error(err))
			continue
		}
		if _, err := s.enqueuer.Enqueue(t); err != nil {
			zap.L().Error("enqueue deliver task", zap.String("delivery_id", attempt.ID), zap.Error(err))
		}
	}

	if len(due) > 0 {
		zap.L().Debug("delivery sweep enqueued", zap.Int("count", len(due)))
	}

	return nil
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
