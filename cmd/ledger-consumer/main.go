// Command ledger-consumer drains the ledger event queue and logs each event,
// giving operators a tail of claims, inspections and releases.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/broker"
	"github.com/noah-isme/relief-ledger-api/pkg/config"
	"github.com/noah-isme/relief-ledger-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := broker.NewConsumer(broker.Config{
		URL:      cfg.Events.URL,
		Exchange: cfg.Events.Exchange,
		Queue:    cfg.Events.Queue,
		Prefetch: cfg.Events.Prefetch,
	}, logr)

	logr.Info("ledger consumer starting", zap.String("exchange", cfg.Events.Exchange), zap.String("queue", cfg.Events.Queue))
	if err := consumer.Run(ctx, logEvent(logr)); err != nil && !errors.Is(err, context.Canceled) {
		logr.Fatal("consumer stopped", zap.Error(err))
	}
	logr.Info("ledger consumer stopped")
}

func logEvent(logr *zap.Logger) broker.MessageHandler {
	return func(ctx context.Context, routingKey string, body []byte) error {
		var ev models.LedgerEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logr.Warn("undecodable ledger event", zap.String("routing_key", routingKey), zap.Error(err))
			return err
		}
		logr.Info("ledger event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("offer_id", ev.OfferID),
			zap.String("parent_id", ev.ParentID),
			zap.String("item", ev.ItemName),
			zap.Int("quantity", ev.Quantity),
			zap.String("status", string(ev.Status)),
			zap.String("actor_id", ev.ActorID),
			zap.String("note", ev.Note),
			zap.Time("occurred_at", ev.OccurredAt),
		)
		return nil
	}
}
