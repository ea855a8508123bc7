package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
)

// MemoryStore — дефолтный бэкенд: потокобезопасная мапа на весь процесс.
// Персистентности нет: рестарт теряет все заявки, это осознанный trade-off.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ApprovalRecord
	logger  *zap.Logger

	// Политика вытеснения решенных заявок (pending живут вечно)
	resolvedTTL   time.Duration
	sweepInterval time.Duration
}

func NewMemoryStore(resolvedTTL, sweepInterval time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records:       make(map[string]*domain.ApprovalRecord),
		logger:        logger.Named("memory-store"),
		resolvedTTL:   resolvedTTL,
		sweepInterval: sweepInterval,
	}
}

func (s *MemoryStore) Put(_ context.Context, rec *domain.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrAlreadyExists
	}

	now := time.Now()
	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records[rec.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) Decide(_ context.Context, id string, status domain.ApprovalStatus, deciderID string) (*domain.ApprovalRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	// Первый клик побеждает: терминальная запись больше не меняется
	if err := rec.CanTransitionTo(status); err != nil {
		return clone(rec), false, nil
	}

	rec.Status = status
	rec.DecidedBy = &deciderID
	rec.UpdatedAt = time.Now()
	return clone(rec), true, nil
}

// StartSweeper запускает фоновый вытеснитель: решенные заявки старше
// resolvedTTL удаляются, ограничивая рост памяти на долгоживущем процессе.
func (s *MemoryStore) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("store sweeper started",
		zap.Duration("resolved_ttl", s.resolvedTTL),
		zap.Duration("interval", s.sweepInterval))

	for {
		select {
		case <-ticker.C:
			if evicted := s.sweep(time.Now()); evicted > 0 {
				s.logger.Info("evicted resolved approvals", zap.Int("count", evicted))
			}
		case <-ctx.Done():
			s.logger.Info("store sweeper stopping by context")
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.records {
		if rec.Status.Terminal() && now.Sub(rec.UpdatedAt) > s.resolvedTTL {
			delete(s.records, id)
			evicted++
		}
	}
	return evicted
}

// clone защищает внутреннее состояние от мутаций через возвращенный указатель.
func clone(rec *domain.ApprovalRecord) *domain.ApprovalRecord {
	c := *rec
	if rec.DecidedBy != nil {
		v := *rec.DecidedBy
		c.DecidedBy = &v
	}
	return &c
}
