package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/velora-shop/checkout/internal/checkout"
	kafkax "github.com/velora-shop/checkout/internal/kafka"
	"github.com/velora-shop/checkout/internal/redisx"
)

type OrderStore interface {
	Complete(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID string) error
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type InventoryStore interface {
	ReleaseAll(ctx context.Context, orderID string) error
}

// Service drives the two background halves of the pipeline: it consumes
// payment confirmations to complete orders, and it sweeps pending orders
// that outlived PendingTTL, cancelling them and returning their stock.
type Service struct {
	Orders     OrderStore
	Inventory  InventoryStore
	Redis      *redis.Client    // optional; enables event dedup
	Producer   *kafkax.Producer // optional; publishes order.cancelled
	Logger     *zap.Logger
	Name       string
	PendingTTL time.Duration
}

const sweepBatch = 100

// HandlePaymentConfirmed is installed as the consumer handler for
// order.payment.confirmed.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventPaymentConfirmed {
		return nil
	}

	var dkey string
	if s.Redis != nil {
		dkey = fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[checkout.PaymentConfirmedPayload](env.Payload)
	if err != nil {
		return err
	}

	// idempotent: completing an already-completed order is a no-op
	if err := s.Orders.Complete(ctx, p.OrderID); err != nil {
		return err
	}
	// marked only after Complete succeeds: a transient failure must stay
	// retryable on redelivery, not be swallowed by the dedup check
	if dkey != "" {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	s.cacheStatus(ctx, p.OrderID, checkout.StatusCompleted)
	s.Logger.Info("order completed",
		zap.String("order_id", p.OrderID),
		zap.String("payment_ref", p.PaymentRef),
	)
	return nil
}

// ReconcileStale cancels pending orders older than PendingTTL and
// releases their reservations. Best effort per order: one failure is
// logged and does not stop the sweep.
func (s *Service) ReconcileStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.PendingTTL)
	ids, err := s.Orders.StalePending(ctx, cutoff, sweepBatch)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.Orders.Cancel(ctx, id); err != nil {
			s.Logger.Error("cancel stale order", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if err := s.Inventory.ReleaseAll(ctx, id); err != nil {
			s.Logger.Error("release stale reservation", zap.String("order_id", id), zap.Error(err))
		}
		s.cacheStatus(ctx, id, checkout.StatusCancelled)
		s.publishCancelled(id, "STALE_PENDING")
		s.Logger.Info("stale order cancelled", zap.String("order_id", id))
	}
	return nil
}

// Run executes the reconciliation sweep on a fixed interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.ReconcileStale(ctx); err != nil {
				s.Logger.Error("reconcile sweep", zap.Error(err))
			}
		}
	}
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st checkout.Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = s.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, st), redisx.TTLStatusCache).Err()
}

func (s *Service) publishCancelled(orderID, reason string) {
	if s.Producer == nil {
		return
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(checkout.OrderCancelledPayload{
			OrderID: orderID,
			Reason:  reason,
		}),
	}
	s.Producer.Publish(checkout.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
