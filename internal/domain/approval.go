package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyDecided    = errors.New("approval request already decided")
)

// ApprovalRecord — состояние одной заявки на согласование.
// RequesterID и ApproverID неизменяемы после создания, Status меняется
// ровно один раз: pending -> approved | rejected.
type ApprovalRecord struct {
	ID          string         `json:"id"`
	RequesterID string         `json:"requester_id"` // Кто запросил согласование
	ApproverID  string         `json:"approver_id"`  // Кому адресована заявка
	RequestText string         `json:"request_text"` // Может быть пустым
	Status      ApprovalStatus `json:"status"`

	DecidedBy *string `json:"decided_by,omitempty"` // Кто нажал кнопку (Accountability)

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal сообщает, принято ли по заявке финальное решение.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRecord) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyDecided
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// DecisionStatus переводит результат клика в терминальный статус.
func DecisionStatus(approved bool) ApprovalStatus {
	if approved {
		return StatusApproved
	}
	return StatusRejected
}
