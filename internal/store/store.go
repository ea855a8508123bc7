package store

import (
	"context"
	"errors"

	"github.com/xela07ax/approvalflow/internal/domain"
)

var (
	// ErrNotFound — заявки с таким ID в хранилище нет.
	ErrNotFound = errors.New("approval record not found")
	// ErrAlreadyExists — коллизия ID при вставке. При UUID-генерации
	// на практике не случается, но контракт Put обязан ее различать.
	ErrAlreadyExists = errors.New("approval record already exists")
)

// Store — capability-интерфейс хранилища заявок. Реализации обязаны делать
// Put и Decide атомарными (insert-if-absent и compare-and-swap статуса),
// чтобы first-write-wins выполнялся честно, а не случайно.
//
// In-memory мапа, Redis и Postgres взаимозаменяемы за этим интерфейсом.
type Store interface {
	// Put вставляет новую заявку. ErrAlreadyExists при коллизии ID.
	Put(ctx context.Context, rec *domain.ApprovalRecord) error

	// Get возвращает заявку по ID или ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ApprovalRecord, error)

	// Decide атомарно переводит pending -> status и фиксирует автора решения.
	// Возвращает актуальное состояние записи и признак, выиграл ли этот
	// вызов гонку (false — решение уже было принято ранее, запись не тронута).
	Decide(ctx context.Context, id string, status domain.ApprovalStatus, deciderID string) (*domain.ApprovalRecord, bool, error)
}

// Sweeper реализуют бэкенды, которым нужен фоновый вытеснитель решенных
// заявок (memory, postgres). Redis обходится TTL на ключах.
type Sweeper interface {
	StartSweeper(ctx context.Context)
}
