package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// User — элемент ответа users.list. Slack отдает десятки полей,
// нам нужны только идентификация и признаки автоматических аккаунтов.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	IsBot    bool   `json:"is_bot"`
	Deleted  bool   `json:"deleted"`
}

// DisplayName — имя для выпадающего списка: real_name с фолбэком на name.
func (u User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Client — тонкая обертка над Slack Web API (HTTPS + Bearer token).
// Каждый метод соответствует одному методу API; ошибки любого уровня
// (сеть, не-2xx, ok:false) сворачиваются в *APIError.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		logger:     logger.Named("slack-client"),
	}
}

// envelope — общий конверт ответов Web API.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ListUsers возвращает ростер воркспейса в том порядке, в котором его отдал Slack.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Members []User `json:"members"`
	}
	if err := c.call(ctx, "users.list", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// OpenView открывает модалку по trigger_id, полученному из slash-команды.
// trigger_id живет секунды, поэтому вызов должен идти сразу после команды.
func (c *Client) OpenView(ctx context.Context, triggerID string, view ModalView) error {
	payload := struct {
		TriggerID string    `json:"trigger_id"`
		View      ModalView `json:"view"`
	}{TriggerID: triggerID, View: view}

	var resp envelope
	return c.call(ctx, "views.open", payload, &resp)
}

// PostMessage отправляет сообщение в канал или DM (channel = user ID).
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []Block) error {
	payload := struct {
		Channel string  `json:"channel"`
		Text    string  `json:"text"`
		Blocks  []Block `json:"blocks,omitempty"`
	}{Channel: channel, Text: text, Blocks: blocks}

	var resp envelope
	return c.call(ctx, "chat.postMessage", payload, &resp)
}

// UpdateMessage редактирует ранее отправленное сообщение по (channel, ts).
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []Block) error {
	payload := struct {
		Channel string  `json:"channel"`
		TS      string  `json:"ts"`
		Text    string  `json:"text"`
		Blocks  []Block `json:"blocks,omitempty"`
	}{Channel: channel, TS: ts, Text: text, Blocks: blocks}

	var resp envelope
	return c.call(ctx, "chat.update", payload, &resp)
}

// call выполняет POST {baseURL}/{method} c JSON-телом и разбирает конверт ответа.
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Method: method, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return &APIError{Method: method, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Method: method, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Method: method, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Method: method, Cause: fmt.Errorf("read response: %w", err)}
	}

	// Конверт {ok:false, error:"..."} — тоже транспортный отказ
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if !env.OK {
		c.logger.Warn("slack api returned error",
			zap.String("method", method),
			zap.String("error", env.Error))
		return &APIError{Method: method, Reason: env.Error}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Method: method, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
