package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mgmt-syncq/internal/shared/archive"
	"mgmt-syncq/internal/shared/model"
	sqlitedriver "mgmt-syncq/internal/shared/storage/driver/sqlite"
	"mgmt-syncq/internal/shared/storage/repository"
	"mgmt-syncq/internal/syncqueue"
	"mgmt-syncq/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	mux     *http.ServeMux
	service *syncqueue.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithArchive(t, nil)
}

func newTestServerWithArchive(t *testing.T, archived archive.Reader) *testServer {
	t.Helper()
	db, err := sqlitedriver.Open(filepath.Join(t.TempDir(), "job.db"))
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })

	svc := syncqueue.NewService(store, "node-test", syncqueue.Options{Logger: logging.Discard()})
	mux := http.NewServeMux()
	NewHandler(svc, archived).RegisterRoutes(mux)
	return &testServer{mux: mux, service: svc}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) enqueue(t *testing.T, kind string, id int64, payload string) EnqueueResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/jobs", EnqueueRequest{ResourceKind: kind, ResourceID: id, PayloadRef: payload})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp EnqueueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestEnqueue(t *testing.T) {
	s := newTestServer(t)

	first := s.enqueue(t, model.ResourceKindNetwork, 42, "job-1")
	second := s.enqueue(t, model.ResourceKindNetwork, 42, "job-2")
	other := s.enqueue(t, model.ResourceKindNetwork, 43, "job-3")

	assert.Equal(t, model.ItemStateQueued, first.State)
	assert.Equal(t, first.QueueID, second.QueueID)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.NotEqual(t, first.QueueID, other.QueueID)
	assert.Equal(t, int64(1), other.Sequence)
}

func TestEnqueue_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"空请求体", nil},
		{"缺少 resource_kind", EnqueueRequest{ResourceID: 1, PayloadRef: "p"}},
		{"缺少 payload_ref", EnqueueRequest{ResourceKind: "network", ResourceID: 1}},
		{"负数 resource_id", EnqueueRequest{ResourceKind: "network", ResourceID: -1, PayloadRef: "p"}},
		{"resource_kind 含空白", EnqueueRequest{ResourceKind: " network", ResourceID: 1, PayloadRef: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGetItem(t *testing.T) {
	s := newTestServer(t)
	job := s.enqueue(t, model.ResourceKindHost, 7, "reboot")

	rec := s.do(t, http.MethodGet, "/api/v1/items/"+job.ItemID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var item model.SyncQueueItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, job.ItemID, item.ID)
	assert.Equal(t, "reboot", item.PayloadRef)
	assert.Equal(t, model.ItemStateQueued, item.State)

	rec = s.do(t, http.MethodGet, "/api/v1/items/sqi-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// fakeArchive 内存归档
type fakeArchive struct {
	items map[string]*model.SyncQueueItem
	err   error
}

func (f *fakeArchive) GetArchived(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[itemID], nil
}

func TestGetItem_Archived(t *testing.T) {
	reaped := model.NewSyncQueueItem("sq-old", "job-old", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	reaped.Sequence, reaped.State = 3, model.ItemStateDone
	s := newTestServerWithArchive(t, &fakeArchive{items: map[string]*model.SyncQueueItem{reaped.ID: reaped}})

	rec := s.do(t, http.MethodGet, "/api/v1/items/"+reaped.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Archived"))
	var item model.SyncQueueItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, model.ItemStateDone, item.State)
	assert.Equal(t, int64(3), item.Sequence)

	// 活跃表中的项不查归档
	job := s.enqueue(t, model.ResourceKindHost, 1, "live")
	rec = s.do(t, http.MethodGet, "/api/v1/items/"+job.ItemID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Archived"))

	rec = s.do(t, http.MethodGet, "/api/v1/items/sqi-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetItem_ArchiveError(t *testing.T) {
	s := newTestServerWithArchive(t, &fakeArchive{err: errors.New("mongo down")})

	rec := s.do(t, http.MethodGet, "/api/v1/items/sqi-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	head := s.enqueue(t, model.ResourceKindCluster, 1, "a")
	tail := s.enqueue(t, model.ResourceKindCluster, 1, "b")

	// 认领队首，使其进入 active
	next, err := s.service.Ledger().NextClaimable(ctx, head.QueueID)
	require.NoError(t, err)
	_, err = s.service.Claims().Claim(ctx, next, "node-test", time.Minute)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/v1/items/"+head.ItemID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "active item must not be cancellable")

	rec = s.do(t, http.MethodPost, "/api/v1/items/"+tail.ItemID+"/cancel", CancelRequest{Reason: "superseded"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item model.SyncQueueItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, model.ItemStateFailed, item.State)
	require.NotNil(t, item.LastError)
	assert.Equal(t, "superseded", *item.LastError)

	rec = s.do(t, http.MethodPost, "/api/v1/items/sqi-missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetQueue(t *testing.T) {
	s := newTestServer(t)
	for _, p := range []string{"a", "b", "c"} {
		s.enqueue(t, model.ResourceKindFirewallRule, 9, p)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/queues/firewall_rule/9?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp QueueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.Queue.LastSeq)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, int64(1), resp.Items[0].Sequence)
	assert.Equal(t, 2, resp.Stats[model.ItemStateQueued])

	rec = s.do(t, http.MethodGet, "/api/v1/queues/firewall_rule/10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/queues/firewall_rule/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
