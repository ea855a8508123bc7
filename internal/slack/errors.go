package slack

import "fmt"

// APIError сигнализирует о неуспехе вызова Slack Web API: сетевой сбой,
// не-2xx ответ или ok:false в конверте ответа. Наружу уходит 500, ретраев нет.
type APIError struct {
	Method string // users.list, views.open, chat.postMessage, chat.update
	Reason string // код ошибки Slack из поля "error", если есть
	Cause  error
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("slack %s failed: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("slack %s failed: %v", e.Method, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }
