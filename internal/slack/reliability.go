package slack

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/approvalflow/internal/infra"
)

// ReliableClient оборачивает Client в Circuit Breaker и исходящий лимитер.
// Ретраев здесь нет намеренно: отказ Slack сразу всплывает к вызывающему,
// повторная доставка — ответственность человека, нажавшего кнопку еще раз.
type ReliableClient struct {
	next    *Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *infra.Metrics
}

func NewReliableClient(next *Client, rps float64, burst int, metrics *infra.Metrics) *ReliableClient {
	rc := &ReliableClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: metrics,
	}

	// Настройка предохранителя
	rc.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "slack-web-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			val := 0.0
			if to == gobreaker.StateOpen {
				val = 1.0
			}
			metrics.CircuitBreakerState.Set(val)
		},
	})

	return rc
}

// do пропускает один вызов через лимитер и предохранитель и снимает метрику длительности.
func (rc *ReliableClient) do(ctx context.Context, method string, fn func() error) error {
	// 1. Исходящий Rate Limiter (вежливость к Web API, ограничен контекстом)
	if err := rc.limiter.Wait(ctx); err != nil {
		return &APIError{Method: method, Cause: err}
	}

	// 2. Circuit Breaker
	start := time.Now()
	_, err := rc.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	rc.metrics.SlackCallDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())

	if err != nil {
		// Отказ самого предохранителя (open state) тоже транспортная ошибка
		if _, ok := err.(*APIError); !ok {
			return &APIError{Method: method, Cause: err}
		}
		return err
	}
	return nil
}

func (rc *ReliableClient) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := rc.do(ctx, "users.list", func() error {
		var callErr error
		users, callErr = rc.next.ListUsers(ctx)
		return callErr
	})
	return users, err
}

func (rc *ReliableClient) OpenView(ctx context.Context, triggerID string, view ModalView) error {
	return rc.do(ctx, "views.open", func() error {
		return rc.next.OpenView(ctx, triggerID, view)
	})
}

func (rc *ReliableClient) PostMessage(ctx context.Context, channel, text string, blocks []Block) error {
	return rc.do(ctx, "chat.postMessage", func() error {
		return rc.next.PostMessage(ctx, channel, text, blocks)
	})
}

func (rc *ReliableClient) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []Block) error {
	return rc.do(ctx, "chat.update", func() error {
		return rc.next.UpdateMessage(ctx, channel, ts, text, blocks)
	})
}
