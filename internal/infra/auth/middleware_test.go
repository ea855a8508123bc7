package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewSignatureVerifier(testSecret)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	body := `{"trigger_token":"T1"}`

	require.NoError(t, v.Verify(ts, sign(testSecret, ts, body), []byte(body)))
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewSignatureVerifier(testSecret)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	body := `{"trigger_token":"T1"}`

	assert.Error(t, v.Verify(ts, sign("other-secret", ts, body), []byte(body)))
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := NewSignatureVerifier(testSecret)
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	body := `{}`

	assert.Error(t, v.Verify(ts, sign(testSecret, ts, body), []byte(body)))
}

func TestMiddlewarePassesValidRequest(t *testing.T) {
	var gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	})

	mw := NewMiddleware(testSecret, zap.NewNop())(next)

	body := `{"trigger_token":"T1"}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/commands/approval", strings.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sign(testSecret, ts, body))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, gotBody, "тело должно дойти до хендлера после проверки подписи")
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be reached")
	})
	mw := NewMiddleware(testSecret, zap.NewNop())(next)

	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(`{}`))
	req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := NewMiddleware("", zap.NewNop())(next)

	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
