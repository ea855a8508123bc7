package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/slack"
	"github.com/xela07ax/approvalflow/internal/store"
)

// ErrMissingTrigger — команда пришла без trigger token, модалку открыть не к чему.
var ErrMissingTrigger = errors.New("trigger token is required")

// Встроенный системный аккаунт Slack, которого нет смысла предлагать
// в качестве согласующего.
const systemAccountID = "USLACKBOT"

// MessagingClient описывает, что сервису нужно от мессенджера.
// Реализуется slack.ReliableClient, в тестах — фейком.
type MessagingClient interface {
	ListUsers(ctx context.Context) ([]slack.User, error)
	OpenView(ctx context.Context, triggerID string, view slack.ModalView) error
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) error
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error
}

// DecisionInput — разобранный payload клика по кнопке Approve/Reject.
type DecisionInput struct {
	ApprovalID string
	Approved   bool
	ClickerID  string
	ChannelID  string
	MessageTS  string
}

type ApprovalService struct {
	store   store.Store
	client  MessagingClient
	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewApprovalService(st store.Store, client MessagingClient, metrics *infra.Metrics, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		store:   st,
		client:  client,
		logger:  logger.Named("approval-service"),
		metrics: metrics,
	}
}

// InitiateRequest обрабатывает slash-команду: собирает список кандидатов
// в согласующие и открывает модалку заявки. Хранилище не трогает.
func (s *ApprovalService) InitiateRequest(ctx context.Context, triggerToken, invokingUserID string) error {
	// 1. Валидация: без trigger token Slack не даст открыть форму
	if triggerToken == "" {
		return ErrMissingTrigger
	}

	// 2. Ростер воркспейса из directory-сервиса
	users, err := s.client.ListUsers(ctx)
	if err != nil {
		s.logger.Error("failed to list workspace users",
			zap.String("invoking_user", invokingUserID),
			zap.Error(err))
		return fmt.Errorf("list users: %w", err)
	}

	// 3. Отсекаем ботов и системный аккаунт. Порядок — как отдал Slack.
	candidates := make([]slack.SelectOption, 0, len(users))
	for _, u := range users {
		if u.IsBot || u.ID == systemAccountID {
			continue
		}
		candidates = append(candidates, slack.NewSelectOption(u.DisplayName(), u.ID))
	}

	// 4. Рендер формы по trigger token
	if err := s.client.OpenView(ctx, triggerToken, slack.RequestModal(candidates)); err != nil {
		s.logger.Error("failed to open approval modal",
			zap.String("invoking_user", invokingUserID),
			zap.Error(err))
		return fmt.Errorf("open modal: %w", err)
	}

	s.logger.Info("approval modal opened",
		zap.String("invoking_user", invokingUserID),
		zap.Int("candidates", len(candidates)))
	return nil
}

// SubmitRequest обрабатывает сабмит модалки: создает pending-заявку,
// подтверждает реквестеру и шлет согласующему сообщение с кнопками.
// При транспортном сбое заявка остается в хранилище — отката нет.
func (s *ApprovalService) SubmitRequest(ctx context.Context, approverID, requestText, submitterID string) (string, error) {
	// 1. Уникальный ID заявки на время жизни процесса
	approvalID := uuid.New().String()

	rec := &domain.ApprovalRecord{
		ID:          approvalID,
		RequesterID: submitterID,
		ApproverID:  approverID,
		RequestText: requestText,
		Status:      domain.StatusPending,
	}

	// 2. Атомарная вставка
	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.Error("failed to store approval request",
			zap.String("approval_id", approvalID),
			zap.Error(err))
		return "", fmt.Errorf("store approval: %w", err)
	}
	s.metrics.PendingApprovals.Inc()

	// 3. Подтверждение реквестеру, что заявка ушла
	ackText, ackBlocks := slack.AckMessage(approverID)
	if err := s.client.PostMessage(ctx, submitterID, ackText, ackBlocks); err != nil {
		s.logger.Error("failed to send requester acknowledgment",
			zap.String("approval_id", approvalID),
			zap.String("requester_id", submitterID),
			zap.Error(err))
		return approvalID, fmt.Errorf("ack requester: %w", err)
	}

	// 4. Интерактивное сообщение согласующему: value кнопок несет approvalID
	msgText, msgBlocks := slack.ApprovalMessage(submitterID, requestText, approvalID)
	if err := s.client.PostMessage(ctx, approverID, msgText, msgBlocks); err != nil {
		s.logger.Error("failed to notify approver",
			zap.String("approval_id", approvalID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return approvalID, fmt.Errorf("notify approver: %w", err)
	}

	s.logger.Info("approval request submitted",
		zap.String("approval_id", approvalID),
		zap.String("requester_id", submitterID),
		zap.String("approver_id", approverID))
	return approvalID, nil
}

// Decide обрабатывает клик по кнопке: переводит заявку в терминальный статус
// (первый клик побеждает), уведомляет реквестера и заменяет кнопки в исходном
// сообщении финальным статусом. Уведомление уходит на каждый клик — повторные
// нотификации при Double Click приняты как поведение продукта.
func (s *ApprovalService) Decide(ctx context.Context, in DecisionInput) error {
	status := domain.DecisionStatus(in.Approved)

	// 1. Compare-and-swap статуса. ErrNotFound всплывает наружу как 404.
	rec, swapped, err := s.store.Decide(ctx, in.ApprovalID, status, in.ClickerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("decision for unknown approval",
				zap.String("approval_id", in.ApprovalID),
				zap.String("clicker_id", in.ClickerID))
			return err
		}
		s.logger.Error("failed to persist decision",
			zap.String("approval_id", in.ApprovalID),
			zap.Error(err))
		return fmt.Errorf("persist decision: %w", err)
	}

	if swapped {
		s.metrics.PendingApprovals.Dec()
		s.metrics.DecisionsTotal.WithLabelValues(string(status)).Inc()
	} else {
		// Гонка кликов: хранилище оставило первый результат
		s.logger.Warn("duplicate decision click, stored status kept",
			zap.String("approval_id", in.ApprovalID),
			zap.String("stored_status", string(rec.Status)),
			zap.String("clicked", string(status)))
	}

	// 2. Уведомляем реквестера о решении (вердикт — от этого клика)
	notifText, notifBlocks := slack.DecisionMessage(in.ClickerID, in.Approved)
	if err := s.client.PostMessage(ctx, rec.RequesterID, notifText, notifBlocks); err != nil {
		s.logger.Error("failed to notify requester of decision",
			zap.String("approval_id", in.ApprovalID),
			zap.String("requester_id", rec.RequesterID),
			zap.Error(err))
		// Статус уже зафиксирован, откатывать его из-за нотификации нельзя
		return fmt.Errorf("notify requester: %w", err)
	}

	// 3. Убираем кнопки из исходного сообщения, фиксируем финальный вид
	finalText, finalBlocks := slack.ResolvedMessage(rec.RequesterID, rec.RequestText, in.Approved)
	if err := s.client.UpdateMessage(ctx, in.ChannelID, in.MessageTS, finalText, finalBlocks); err != nil {
		s.logger.Error("failed to update original approval message",
			zap.String("approval_id", in.ApprovalID),
			zap.String("channel_id", in.ChannelID),
			zap.String("message_ts", in.MessageTS),
			zap.Error(err))
		return fmt.Errorf("update message: %w", err)
	}

	s.logger.Info("approval decision processed",
		zap.String("approval_id", in.ApprovalID),
		zap.String("decider", in.ClickerID),
		zap.String("result", string(status)))
	return nil
}
