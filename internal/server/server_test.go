package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
	"github.com/xela07ax/approvalflow/internal/handler"
	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/service"
	"github.com/xela07ax/approvalflow/internal/slack"
	"github.com/xela07ax/approvalflow/internal/store"
)

// fakeSlackAPI имитирует Web API целиком: настраиваемый ростер,
// журнал вызовов по методам.
type fakeSlackAPI struct {
	mu    sync.Mutex
	calls map[string][]json.RawMessage
	users string // готовый JSON-ответ users.list
}

func (f *fakeSlackAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[1:]

		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls[method] = append(f.calls[method], body)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if method == "users.list" {
			w.Write([]byte(f.users))
			return
		}
		w.Write([]byte(`{"ok": true}`))
	})
}

func (f *fakeSlackAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

func (f *fakeSlackAPI) lastCall(t *testing.T, method string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := f.calls[method]
	require.NotEmpty(t, calls, "expected at least one %s call", method)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(calls[len(calls)-1], &payload))
	return payload
}

type testEnv struct {
	srv   *httptest.Server
	api   *fakeSlackAPI
	store *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := &fakeSlackAPI{
		calls: make(map[string][]json.RawMessage),
		users: `{"ok": true, "members": [{"id": "U2", "name": "bob", "real_name": "Bob", "is_bot": false}]}`,
	}
	apiSrv := httptest.NewServer(api.handler())
	t.Cleanup(apiSrv.Close)

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	st := store.NewMemoryStore(time.Hour, time.Minute, logger)

	raw := slack.NewClient(apiSrv.URL, "xoxb-test", 5*time.Second, logger)
	client := slack.NewReliableClient(raw, 100, 20, metrics)

	svc := service.NewApprovalService(st, client, metrics, logger)

	cfg := &infra.Config{} // без signing secret — проверка подписи выключена
	s := NewServer(cfg, logger, reg,
		handler.NewCommandHandler(svc, metrics, logger),
		handler.NewInteractionHandler(svc, metrics, logger))

	httpSrv := httptest.NewServer(s)
	t.Cleanup(httpSrv.Close)

	return &testEnv{srv: httpSrv, api: api, store: st}
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestCommandMissingTriggerToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/commands/approval", map[string]string{
		"invoking_user_id": "U1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.api.callCount("views.open"), "без trigger token модалка не открывается")
}

func TestCommandDownstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.api.users = `{"ok": false, "error": "invalid_auth"}`

	resp := env.postJSON(t, "/commands/approval", map[string]string{
		"trigger_token":    "T1",
		"invoking_user_id": "U1",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestInteractionMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/interactions", "application/json",
		bytes.NewReader([]byte("invalid_payload")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, env.api.callCount("chat.postMessage"), "хранилище и транспорт не затронуты")
}

func TestClickUnknownApproval(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/interactions", map[string]string{
		"type":        "click",
		"control_id":  "approve",
		"approval_id": "missing",
		"clicker_id":  "U2",
		"channel_id":  "C1",
		"message_ts":  "100.1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, env.api.callCount("chat.postMessage"))
	assert.Zero(t, env.api.callCount("chat.update"))
}

// TestEndToEndApprovalFlow прогоняет весь цикл: команда -> модалка ->
// сабмит -> pending-запись -> клик Approve -> approved + уведомление +
// правка исходного сообщения.
func TestEndToEndApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 1. Slash-команда открывает модалку с кандидатами из ростера
	resp := env.postJSON(t, "/commands/approval", map[string]string{
		"trigger_token":    "T1",
		"invoking_user_id": "U1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	opened := env.api.lastCall(t, "views.open")
	assert.Equal(t, "T1", opened["trigger_id"])

	// 2. Сабмит формы создает pending-заявку и два сообщения
	resp = env.postJSON(t, "/interactions", map[string]string{
		"type":         "submission",
		"approver_id":  "U2",
		"text":         "Need sign-off",
		"submitter_id": "U1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, env.api.callCount("chat.postMessage"))

	// Достаем approval ID из value кнопки в сообщении согласующему
	approverMsg := env.api.lastCall(t, "chat.postMessage")
	assert.Equal(t, "U2", approverMsg["channel"])
	blocks := approverMsg["blocks"].([]interface{})
	actions := blocks[1].(map[string]interface{})
	elements := actions["elements"].([]interface{})
	approvalID := elements[0].(map[string]interface{})["value"].(string)
	require.NotEmpty(t, approvalID)

	rec, err := env.store.Get(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, "U1", rec.RequesterID)
	assert.Equal(t, "U2", rec.ApproverID)

	// 3. Клик Approve: статус фиксируется, реквестер уведомлен, сообщение отредактировано
	resp = env.postJSON(t, "/interactions", map[string]string{
		"type":        "click",
		"control_id":  "approve",
		"approval_id": approvalID,
		"clicker_id":  "U2",
		"channel_id":  "C1",
		"message_ts":  "100.1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err = env.store.Get(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, rec.Status)

	notif := env.api.lastCall(t, "chat.postMessage")
	assert.Equal(t, "U1", notif["channel"])
	assert.Contains(t, notif["text"], "approved")

	updated := env.api.lastCall(t, "chat.update")
	assert.Equal(t, "C1", updated["channel"])
	assert.Equal(t, "100.1", updated["ts"])
	assert.Contains(t, updated["text"], "approved")
}

func TestClickRejectFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/interactions", map[string]string{
		"type":         "submission",
		"approver_id":  "U2",
		"text":         "Prod deploy",
		"submitter_id": "U1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	approverMsg := env.api.lastCall(t, "chat.postMessage")
	blocks := approverMsg["blocks"].([]interface{})
	elements := blocks[1].(map[string]interface{})["elements"].([]interface{})
	// Вторая кнопка — Reject, ее value несет тот же approval ID
	rejectBtn := elements[1].(map[string]interface{})
	approvalID := rejectBtn["value"].(string)
	require.Equal(t, "reject_request", rejectBtn["action_id"])

	resp = env.postJSON(t, "/interactions", map[string]string{
		"type":        "click",
		"control_id":  "reject_request",
		"approval_id": approvalID,
		"clicker_id":  "U2",
		"channel_id":  "C1",
		"message_ts":  "100.2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := env.store.Get(context.Background(), approvalID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rec.Status)
}
