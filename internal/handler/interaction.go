package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/service"
	"github.com/xela07ax/approvalflow/internal/slack"
	"github.com/xela07ax/approvalflow/internal/store"
)

// InteractionService Описываем, что нам нужно от сервиса
type InteractionService interface {
	SubmitRequest(ctx context.Context, approverID, requestText, submitterID string) (string, error)
	Decide(ctx context.Context, in service.DecisionInput) error
}

type InteractionHandler struct {
	service InteractionService
	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewInteractionHandler(s InteractionService, metrics *infra.Metrics, logger *zap.Logger) *InteractionHandler {
	return &InteractionHandler{
		service: s,
		logger:  logger.Named("interaction-handler"),
		metrics: metrics,
	}
}

const (
	interactionSubmission = "submission"
	interactionClick      = "click"
)

// interactionPayload — объединение двух видов интеракций.
// Какие поля значимы, определяет поле type.
type interactionPayload struct {
	Type string `json:"type"`

	// type == "submission"
	ApproverID  string `json:"approver_id"`
	Text        string `json:"text"`
	SubmitterID string `json:"submitter_id"`

	// type == "click"
	ControlID  string `json:"control_id"`
	ApprovalID string `json:"approval_id"`
	ClickerID  string `json:"clicker_id"`
	ChannelID  string `json:"channel_id"`
	MessageTS  string `json:"message_ts"`
}

// Handle — POST /interactions. Нечитаемый или неизвестный payload -> 500,
// неизвестный approval_id при клике -> 404, успех -> 200 с пустым телом.
func (h *InteractionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload interactionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.metrics.RequestsTotal.WithLabelValues("interaction", "malformed").Inc()
		h.logger.Error("malformed interaction payload", zap.Error(err))
		http.Error(w, "Failed to process interaction", http.StatusInternalServerError)
		return
	}

	switch payload.Type {
	case interactionSubmission:
		h.handleSubmission(w, r, payload)
	case interactionClick:
		h.handleClick(w, r, payload)
	default:
		h.metrics.RequestsTotal.WithLabelValues("interaction", "malformed").Inc()
		h.logger.Error("unknown interaction type", zap.String("type", payload.Type))
		http.Error(w, "Failed to process interaction", http.StatusInternalServerError)
	}
}

func (h *InteractionHandler) handleSubmission(w http.ResponseWriter, r *http.Request, p interactionPayload) {
	approvalID, err := h.service.SubmitRequest(r.Context(), p.ApproverID, p.Text, p.SubmitterID)
	if err != nil {
		h.metrics.RequestsTotal.WithLabelValues("submission", "transport_error").Inc()
		h.logger.Error("submission failed",
			zap.String("approval_id", approvalID),
			zap.Error(err))
		http.Error(w, "Failed to send approval request", http.StatusInternalServerError)
		return
	}

	h.metrics.RequestsTotal.WithLabelValues("submission", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *InteractionHandler) handleClick(w http.ResponseWriter, r *http.Request, p interactionPayload) {
	in := service.DecisionInput{
		ApprovalID: p.ApprovalID,
		Approved:   isApproveControl(p.ControlID),
		ClickerID:  p.ClickerID,
		ChannelID:  p.ChannelID,
		MessageTS:  p.MessageTS,
	}

	err := h.service.Decide(r.Context(), in)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.metrics.RequestsTotal.WithLabelValues("click", "not_found").Inc()
		http.Error(w, "Approval request not found", http.StatusNotFound)
	case err != nil:
		h.metrics.RequestsTotal.WithLabelValues("click", "transport_error").Inc()
		h.logger.Error("decision failed",
			zap.String("approval_id", p.ApprovalID),
			zap.Error(err))
		http.Error(w, "Failed to process approval action", http.StatusInternalServerError)
	default:
		h.metrics.RequestsTotal.WithLabelValues("click", "ok").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

// isApproveControl принимает и короткий control id, и action_id кнопки
// из Block Kit payload'а. Всё остальное трактуется как reject.
func isApproveControl(controlID string) bool {
	return controlID == "approve" || controlID == slack.ActionApprove
}
