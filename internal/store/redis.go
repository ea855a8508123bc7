package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
)

// Пространство ключей проекта в Redis
const (
	redisNamespace   = "approvalflow"
	redisKeyApproval = redisNamespace + ":approvals:"
)

func approvalKey(id string) string {
	return redisKeyApproval + id
}

// RedisStore — бэкенд хранилища, переживающий рестарт процесса.
// Записи лежат JSON-ом под ключом approvalflow:approvals:{id}; решенные
// заявки получают TTL и вытесняются самим Redis, sweeper не нужен.
type RedisStore struct {
	rdb         *redis.Client
	logger      *zap.Logger
	resolvedTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, resolvedTTL time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		rdb:         rdb,
		logger:      logger.Named("redis-store"),
		resolvedTTL: resolvedTTL,
	}
}

func (s *RedisStore) Put(ctx context.Context, rec *domain.ApprovalRecord) error {
	now := time.Now()
	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now

	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("redis store: marshal record: %w", err)
	}

	// SetNX гарантирует insert-if-absent атомарно
	ok, err := s.rdb.SetNX(ctx, approvalKey(rec.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis store: put %s: %w", rec.ID, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.ApprovalRecord, error) {
	raw, err := s.rdb.Get(ctx, approvalKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get %s: %w", id, err)
	}

	var rec domain.ApprovalRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis store: unmarshal %s: %w", id, err)
	}
	return &rec, nil
}

// Decide делает CAS через WATCH: транзакция откатывается, если ключ
// поменяли между чтением и записью, и мы пробуем заново.
func (s *RedisStore) Decide(ctx context.Context, id string, status domain.ApprovalStatus, deciderID string) (*domain.ApprovalRecord, bool, error) {
	key := approvalKey(id)

	var (
		result  *domain.ApprovalRecord
		swapped bool
	)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec domain.ApprovalRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}

		// Решение уже принято — возвращаем как есть, запись не трогаем
		if err := rec.CanTransitionTo(status); err != nil {
			result = &rec
			swapped = false
			return nil
		}

		rec.Status = status
		rec.DecidedBy = &deciderID
		rec.UpdatedAt = time.Now()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// Решенная заявка истечет сама — это замена фонового sweeper'а
			pipe.Set(ctx, key, updated, s.resolvedTTL)
			return nil
		})
		if err != nil {
			return err
		}

		result = &rec
		swapped = true
		return nil
	}

	// Ограниченное число попыток на случай конкурентных кликов
	for attempt := 0; attempt < 5; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			swapped = false
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return nil, false, ErrNotFound
		}
		if err != nil {
			return nil, false, fmt.Errorf("redis store: decide %s: %w", id, err)
		}
		return result, swapped, nil
	}

	return nil, false, fmt.Errorf("redis store: decide %s: too many concurrent updates", id)
}
