package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/service"
)

// CommandService Описываем, что нам нужно от сервиса
type CommandService interface {
	InitiateRequest(ctx context.Context, triggerToken, invokingUserID string) error
}

type CommandHandler struct {
	service CommandService
	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewCommandHandler(s CommandService, metrics *infra.Metrics, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		service: s,
		logger:  logger.Named("command-handler"),
		metrics: metrics,
	}
}

type commandRequest struct {
	TriggerToken   string `json:"trigger_token"`
	InvokingUserID string `json:"invoking_user_id"`
}

// HandleApproval — POST /commands/approval.
// 400 без trigger token, 500 при отказе Slack, иначе 200.
func (h *CommandHandler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Нечитаемое тело равнозначно отсутствию trigger token
		h.metrics.RequestsTotal.WithLabelValues("command", "validation_error").Inc()
		http.Error(w, "Invalid request: No trigger token found", http.StatusBadRequest)
		return
	}

	err := h.service.InitiateRequest(r.Context(), req.TriggerToken, req.InvokingUserID)
	switch {
	case errors.Is(err, service.ErrMissingTrigger):
		h.metrics.RequestsTotal.WithLabelValues("command", "validation_error").Inc()
		http.Error(w, "Invalid request: No trigger token found", http.StatusBadRequest)
	case err != nil:
		h.metrics.RequestsTotal.WithLabelValues("command", "transport_error").Inc()
		h.logger.Error("slash command failed", zap.Error(err))
		http.Error(w, "Failed to handle command", http.StatusInternalServerError)
	default:
		h.metrics.RequestsTotal.WithLabelValues("command", "ok").Inc()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Request sent successfully"))
	}
}
