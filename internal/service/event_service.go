package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
)

// EventQueueName is the in-process queue feeding the broker.
const EventQueueName = "ledger-events"

type eventPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, payload interface{}) error
}

// LedgerEventService hands committed ledger events to the broker off the
// request path. A full queue or a broker outage drops events; the ledger
// itself never waits on them.
type LedgerEventService struct {
	publisher eventPublisher
	queue     *jobs.Queue
	logger    *zap.Logger
	timeout   time.Duration
}

// NewLedgerEventService builds the service and its dispatch queue.
func NewLedgerEventService(publisher eventPublisher, cfg jobs.QueueConfig, logger *zap.Logger) *LedgerEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LedgerEventService{publisher: publisher, logger: logger, timeout: 5 * time.Second}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	if cfg.OnDrop == nil {
		cfg.OnDrop = func(job jobs.Job, err error) {
			logger.Error("ledger event dropped", zap.String("event_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		}
	}
	s.queue = jobs.NewQueue(EventQueueName, s.handle, cfg)
	return s
}

// Start begins dispatching.
func (s *LedgerEventService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop halts dispatching; queued events are discarded.
func (s *LedgerEventService) Stop() { s.queue.Stop() }

// Emit queues ev for publication.
func (s *LedgerEventService) Emit(ev models.LedgerEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: ev.ID, Type: string(ev.Type), Payload: ev}); err != nil {
		s.logger.Warn("ledger event not queued", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (s *LedgerEventService) handle(ctx context.Context, job jobs.Job) error {
	ev, ok := job.Payload.(models.LedgerEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", job.Payload)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, string(ev.Type), ev.ID, ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}
