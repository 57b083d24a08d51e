// Package dlq keeps a bounded record of forwards that never reached a
// 2xx so an operator can inspect and replay them. It is not a durable
// queue: the in-memory store forgets everything on restart.
package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/slackrelay/delivery"
	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/internal/entity"
	"github.com/xraph/slackrelay/observability"
)

// Redeliverer re-sends the body of an entry.
type Redeliverer interface {
	Redeliver(ctx context.Context, e *Entry) delivery.Outcome
}

// Service manages the dead letter queue.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu        sync.Mutex
	replaying map[string]struct{}
}

// NewService creates a new DLQ service. metrics may be nil.
func NewService(store Store, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		replaying: make(map[string]struct{}),
	}
}

// PushFailed records a failed forward of req.
func (svc *Service) PushFailed(ctx context.Context, req delivery.Request, out delivery.Outcome, actionKey string) (*Entry, error) {
	now := svc.now().UTC()
	target := out.URL
	if target == "" {
		target = req.URL
	}

	entry := &Entry{
		Entity:         entity.At(now),
		ID:             id.NewDLQID(),
		ForwardID:      out.ID,
		Type:           req.Type,
		ActionKey:      actionKey,
		Target:         delivery.RedactURL(target),
		Body:           string(req.Body),
		ContentType:    req.ContentType,
		Status:         out.Status,
		Error:          out.Error,
		AttemptCount:   out.Attempts,
		LastStatusCode: out.StatusCode,
		FailedAt:       now,
	}

	if err := svc.store.Push(ctx, entry); err != nil {
		return nil, fmt.Errorf("dlq: push: %w", err)
	}
	svc.refreshSize(ctx)

	svc.logger.InfoContext(ctx, "dead-lettered",
		"dlq_id", entry.ID, "forward_id", out.ID, "status", out.Status)
	return entry, nil
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay re-sends one entry through r. A delivered replay stamps
// ReplayedAt; a failed one updates the entry's error and status.
//
// Concurrent replays of one entry within this process are serialized:
// the loser gets ErrReplayInProgress. Across processes sharing a store
// there is no claim, so replay is at-least-once.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID, r Redeliverer) (delivery.Outcome, error) {
	if !svc.claim(dlqID) {
		return delivery.Outcome{}, ErrReplayInProgress
	}
	defer svc.release(dlqID)

	e, err := svc.store.GetDLQ(ctx, dlqID)
	if err != nil {
		return delivery.Outcome{}, err
	}
	if e.ReplayedAt != nil {
		return delivery.Outcome{}, ErrAlreadyReplayed
	}

	out := r.Redeliver(ctx, e)

	now := svc.now().UTC()
	e.ReplayCount++
	e.Touch(now)
	if out.Status == delivery.StatusDelivered {
		e.ReplayedAt = &now
	} else {
		e.Status = out.Status
		e.Error = out.Error
		e.AttemptCount = out.Attempts
		e.LastStatusCode = out.StatusCode
	}

	if err := svc.store.UpdateDLQ(ctx, e); err != nil {
		return out, fmt.Errorf("dlq: update after replay: %w", err)
	}

	svc.logger.InfoContext(ctx, "dlq replay",
		"dlq_id", e.ID, "forward_id", out.ID, "status", out.Status, "replay_count", e.ReplayCount)
	return out, nil
}

// ReplayBulk replays every not-yet-replayed entry that failed within
// [from, to], skipping entries another replay holds. It returns how many
// replays were delivered.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time, r Redeliverer) (int64, error) {
	entries, err := svc.store.ListDLQ(ctx, ListOpts{From: &from, To: &to})
	if err != nil {
		return 0, err
	}

	var delivered int64
	for _, e := range entries {
		if e.ReplayedAt != nil {
			continue
		}
		out, err := svc.Replay(ctx, e.ID, r)
		if errors.Is(err, ErrReplayInProgress) || errors.Is(err, ErrAlreadyReplayed) {
			continue
		}
		if err != nil {
			return delivered, err
		}
		if out.Status == delivery.StatusDelivered {
			delivered++
		}
	}
	return delivered, nil
}

// Purge removes entries that failed before the threshold.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := svc.store.Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	svc.refreshSize(ctx)
	return n, nil
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}

func (svc *Service) claim(dlqID id.ID) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	key := dlqID.String()
	if _, busy := svc.replaying[key]; busy {
		return false
	}
	svc.replaying[key] = struct{}{}
	return true
}

func (svc *Service) release(dlqID id.ID) {
	svc.mu.Lock()
	delete(svc.replaying, dlqID.String())
	svc.mu.Unlock()
}

func (svc *Service) refreshSize(ctx context.Context) {
	if svc.metrics == nil {
		return
	}
	n, err := svc.store.CountDLQ(ctx)
	if err != nil {
		svc.logger.WarnContext(ctx, "dlq count failed", "error", err)
		return
	}
	svc.metrics.SetDLQSize(n)
}
