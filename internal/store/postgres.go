package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
)

/*
Файл postgres.go — durable-бэкенд хранилища заявок на базе pgx.

Ожидаемая схема:

	CREATE TABLE approvals (
	    id           TEXT PRIMARY KEY,
	    requester_id TEXT NOT NULL,
	    approver_id  TEXT NOT NULL,
	    request_text TEXT NOT NULL DEFAULT '',
	    status       TEXT NOT NULL DEFAULT 'pending',
	    decided_by   TEXT,
	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
*/

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	resolvedTTL   time.Duration
	sweepInterval time.Duration
}

func NewPostgresStore(ctx context.Context, dbURL string, maxConns, minConns int32, resolvedTTL, sweepInterval time.Duration, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse config: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}

	return &PostgresStore{
		pool:          pool,
		logger:        logger.Named("postgres-store"),
		resolvedTTL:   resolvedTTL,
		sweepInterval: sweepInterval,
	}, nil
}

// Ping проверяет доступность базы при старте
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Put(ctx context.Context, rec *domain.ApprovalRecord) error {
	query := `INSERT INTO approvals (id, requester_id, approver_id, request_text, status)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, rec.ID, rec.RequesterID, rec.ApproverID, rec.RequestText, rec.Status)
	if err != nil {
		return fmt.Errorf("postgres store: failed to create approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ApprovalRecord, error) {
	query := `SELECT id, requester_id, approver_id, request_text, status, decided_by, created_at, updated_at
	          FROM approvals WHERE id = $1`

	rec, err := scanApproval(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: get %s: %w", id, err)
	}
	return rec, nil
}

// Decide атомарно обновляет статус заявки.
// Условие WHERE status = 'pending' предотвращает Double Decision:
// проигравший клик не меняет строку, и мы отдаем ее текущее состояние.
func (s *PostgresStore) Decide(ctx context.Context, id string, status domain.ApprovalStatus, deciderID string) (*domain.ApprovalRecord, bool, error) {
	query := `
		UPDATE approvals
		SET status = $1,
		    decided_by = $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
		RETURNING id, requester_id, approver_id, request_text, status, decided_by, created_at, updated_at`

	rec, err := scanApproval(s.pool.QueryRow(ctx, query, status, deciderID, id))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("postgres store: decide %s: %w", id, err)
	}

	// Строк не нашлось: либо ID неверный, либо решение уже принято раньше.
	// Различаем через обычный Get.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return current, false, nil
}

// StartSweeper удаляет решенные заявки старше resolvedTTL,
// чтобы таблица не росла бесконечно.
func (s *PostgresStore) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("store sweeper started",
		zap.Duration("resolved_ttl", s.resolvedTTL),
		zap.Duration("interval", s.sweepInterval))

	for {
		select {
		case <-ticker.C:
			query := `DELETE FROM approvals WHERE status <> 'pending' AND updated_at < NOW() - make_interval(secs => $1)`
			tag, err := s.pool.Exec(ctx, query, s.resolvedTTL.Seconds())
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if tag.RowsAffected() > 0 {
				s.logger.Info("evicted resolved approvals", zap.Int64("count", tag.RowsAffected()))
			}
		case <-ctx.Done():
			s.logger.Info("store sweeper stopping by context")
			return
		}
	}
}

func scanApproval(row pgx.Row) (*domain.ApprovalRecord, error) {
	var rec domain.ApprovalRecord
	var decidedBy sql.NullString // Используем для обработки NULL из БД

	err := row.Scan(
		&rec.ID,
		&rec.RequesterID,
		&rec.ApproverID,
		&rec.RequestText,
		&rec.Status,
		&decidedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if decidedBy.Valid {
		val := decidedBy.String
		rec.DecidedBy = &val
	}
	return &rec, nil
}
