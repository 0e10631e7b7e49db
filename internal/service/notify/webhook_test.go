package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xhttp "SignalFlow/pkg/http"
	"SignalFlow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostsEvent(t *testing.T) {
	var (
		gotHeader string
		got       webhookBody
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Event-Type")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, logger.Nop())
	err := n.Notify(context.Background(), "signal.generated", []byte(`{"symbol":"BTCUSDT"}`))
	require.NoError(t, err)

	assert.Equal(t, "signal.generated", gotHeader)
	assert.Equal(t, "signal.generated", got.Event)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(got.Payload))
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookNonJSONPayloadIsQuoted(t *testing.T) {
	var got webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, logger.Nop())
	require.NoError(t, n.Notify(context.Background(), "x", []byte("plain text")))
	assert.Equal(t, `"plain text"`, string(got.Payload))
}

func TestWebhookSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, logger.Nop())
	err := n.Notify(context.Background(), "trade.executed", []byte(`{}`))
	require.Error(t, err)

	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.True(t, se.Retryable())
}

func TestEmptyURLLogsOnly(t *testing.T) {
	n := NewWebhook("", time.Second, logger.Nop())
	_, ok := n.(*LogNotifier)
	require.True(t, ok)
	assert.NoError(t, n.Notify(context.Background(), "monitoring.started", []byte(`{}`)))
}
