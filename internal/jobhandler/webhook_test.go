package jobhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mgmt-syncq/internal/config"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
	"mgmt-syncq/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem() *model.SyncQueueItem {
	return &model.SyncQueueItem{
		ID:           "sqi-1",
		QueueID:      "sq-1",
		Sequence:     3,
		PayloadRef:   "nat-rule/17",
		State:        model.ItemStateActive,
		Attempts:     2,
		ResourceKind: model.ResourceKindStaticNat,
		ResourceID:   17,
	}
}

func TestWebhook_SendsItem(t *testing.T) {
	var got WebhookRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhook(srv.URL, time.Second, map[string]string{"X-Token": "secret"})
	res := h.Handle(context.Background(), testItem())

	assert.Equal(t, syncqueue.OutcomeDone, res.Outcome)
	assert.Equal(t, "sqi-1", got.ItemID)
	assert.Equal(t, "sq-1", got.QueueID)
	assert.Equal(t, model.ResourceKindStaticNat, got.ResourceKind)
	assert.Equal(t, int64(17), got.ResourceID)
	assert.Equal(t, int64(3), got.Sequence)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, "nat-rule/17", got.PayloadRef)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "sqi-1", headers.Get("Idempotency-Key"))
	assert.Equal(t, "secret", headers.Get("X-Token"))
}

func TestWebhook_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   syncqueue.Outcome
	}{
		{http.StatusOK, syncqueue.OutcomeDone},
		{http.StatusAccepted, syncqueue.OutcomeDone},
		{http.StatusRequestTimeout, syncqueue.OutcomeRetriable},
		{http.StatusConflict, syncqueue.OutcomeRetriable},
		{http.StatusTooEarly, syncqueue.OutcomeRetriable},
		{http.StatusTooManyRequests, syncqueue.OutcomeRetriable},
		{http.StatusInternalServerError, syncqueue.OutcomeRetriable},
		{http.StatusServiceUnavailable, syncqueue.OutcomeRetriable},
		{http.StatusBadRequest, syncqueue.OutcomeFatal},
		{http.StatusNotFound, syncqueue.OutcomeFatal},
		{http.StatusUnprocessableEntity, syncqueue.OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("ip already allocated"))
			}))
			defer srv.Close()

			res := NewWebhook(srv.URL, time.Second, nil).Handle(context.Background(), testItem())
			assert.Equal(t, tt.want, res.Outcome)
			if tt.want != syncqueue.OutcomeDone {
				assert.Contains(t, res.Reason, "ip already allocated")
			}
		})
	}
}

func TestWebhook_RetryAfter(t *testing.T) {
	tests := []struct {
		status int
		header string
		want   time.Duration
	}{
		{http.StatusTooManyRequests, "7", 7 * time.Second},
		{http.StatusServiceUnavailable, "2", 2 * time.Second},
		{http.StatusTooManyRequests, "", 0},
		{http.StatusTooManyRequests, "soon", 0},
		{http.StatusInternalServerError, "7", 0},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.header != "" {
				w.Header().Set("Retry-After", tt.header)
			}
			w.WriteHeader(tt.status)
		}))
		res := NewWebhook(srv.URL, time.Second, nil).Handle(context.Background(), testItem())
		srv.Close()

		assert.Equal(t, syncqueue.OutcomeRetriable, res.Outcome)
		assert.Equal(t, tt.want, res.RetryAfter, "status=%d header=%q", tt.status, tt.header)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestWebhook_TransportErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewWebhook(url, time.Second, nil).Handle(context.Background(), testItem())
	assert.Equal(t, syncqueue.OutcomeRetriable, res.Outcome)
}

func TestWebhook_TimeoutIsRetriable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := NewWebhook(srv.URL, 50*time.Millisecond, nil).Handle(context.Background(), testItem())
	assert.Equal(t, syncqueue.OutcomeRetriable, res.Outcome)
}

func TestLog_ReturnsDone(t *testing.T) {
	res := NewLog(logging.Discard()).Handle(context.Background(), testItem())
	assert.Equal(t, syncqueue.OutcomeDone, res.Outcome)
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(config.HandlersConfig{
		Default: "log",
		Webhooks: map[string]config.WebhookConfig{
			model.ResourceKindNetwork: {URL: "http://network-agent/apply", Timeout: time.Second},
		},
	}, logging.Discard())
	require.NoError(t, err)

	h, ok := reg.Resolve(model.ResourceKindNetwork)
	require.True(t, ok)
	assert.IsType(t, &Webhook{}, h)

	h, ok = reg.Resolve(model.ResourceKindHost)
	require.True(t, ok)
	assert.IsType(t, &Log{}, h)
}

func TestBuildRegistry_NoDefault(t *testing.T) {
	reg, err := BuildRegistry(config.HandlersConfig{Default: "none"}, logging.Discard())
	require.NoError(t, err)
	_, ok := reg.Resolve(model.ResourceKindHost)
	assert.False(t, ok)

	_, err = BuildRegistry(config.HandlersConfig{Default: "shell"}, logging.Discard())
	assert.Error(t, err)

	_, err = BuildRegistry(config.HandlersConfig{Webhooks: map[string]config.WebhookConfig{"vm": {}}}, logging.Discard())
	assert.Error(t, err)
}
