package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/slackrelay/delivery"
	"github.com/xraph/slackrelay/dlq"
	"github.com/xraph/slackrelay/id"
	"github.com/xraph/slackrelay/internal/entity"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID             string     `json:"id"`
	ForwardID      string     `json:"forward_id"`
	Type           string     `json:"type"`
	ActionKey      string     `json:"action_key,omitempty"`
	Target         string     `json:"target"`
	Body           string     `json:"body"`
	ContentType    string     `json:"content_type,omitempty"`
	Status         string     `json:"status"`
	Error          string     `json:"error"`
	AttemptCount   int        `json:"attempt_count"`
	LastStatusCode int        `json:"last_status_code"`
	ReplayCount    int        `json:"replay_count"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	FailedAt       time.Time  `json:"failed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	m := &dlqEntryModel{
		ID:             e.ID.String(),
		Type:           e.Type,
		ActionKey:      e.ActionKey,
		Target:         e.Target,
		Body:           e.Body,
		ContentType:    e.ContentType,
		Status:         string(e.Status),
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		ReplayCount:    e.ReplayCount,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if !e.ForwardID.IsNil() {
		m.ForwardID = e.ForwardID.String()
	}
	return m
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	fwdID := id.Nil
	if m.ForwardID != "" {
		fwdID, err = id.ParseWithPrefix(m.ForwardID, id.PrefixForward)
		if err != nil {
			return nil, fmt.Errorf("parse forward ID %q: %w", m.ForwardID, err)
		}
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		ForwardID:      fwdID,
		Type:           m.Type,
		ActionKey:      m.ActionKey,
		Target:         m.Target,
		Body:           m.Body,
		ContentType:    m.ContentType,
		Status:         delivery.Status(m.Status),
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		ReplayCount:    m.ReplayCount,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

// Push stores an entry and trims the index to the bound.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, entityKey(prefixDLQ, m.ID), raw, 0)
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	card := pipe.ZCard(ctx, zDLQAll)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("slackrelay/redis: push dlq: %w", err)
	}

	if excess := card.Val() - int64(s.maxEntries); excess > 0 {
		return s.trim(ctx, excess)
	}
	return nil
}

// trim removes the n oldest entries.
func (s *Store) trim(ctx context.Context, n int64) error {
	ids, err := s.rdb.ZRange(ctx, zDLQAll, 0, n-1).Result()
	if err != nil {
		return fmt.Errorf("slackrelay/redis: trim dlq: %w", err)
	}
	return s.deleteDLQEntries(ctx, ids)
}

// ListDLQ returns entries newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("slackrelay/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		if !opts.Match(entry) {
			continue
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, fmt.Errorf("slackrelay/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

// UpdateDLQ overwrites an existing entry.
func (s *Store) UpdateDLQ(ctx context.Context, entry *dlq.Entry) error {
	raw, err := marshalEntity(toDLQEntryModel(entry))
	if err != nil {
		return err
	}
	// XX: only overwrite an entry that still exists.
	ok, err := s.rdb.SetXX(ctx, entityKey(prefixDLQ, entry.ID.String()), raw, goredis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("slackrelay/redis: update dlq: %w", err)
	}
	if !ok {
		return dlq.ErrNotFound
	}
	return nil
}

// Purge deletes entries that failed before a threshold.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("slackrelay/redis: purge list: %w", err)
	}
	if err := s.deleteDLQEntries(ctx, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("slackrelay/redis: count dlq: %w", err)
	}
	return count, nil
}

// deleteDLQEntries removes entries and their index members.
func (s *Store) deleteDLQEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, entryID := range ids {
		pipe.Del(ctx, entityKey(prefixDLQ, entryID))
		pipe.ZRem(ctx, zDLQAll, entryID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("slackrelay/redis: delete dlq: %w", err)
	}
	return nil
}
