package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mgmt-syncq/internal/apiserver/auth"
	"mgmt-syncq/internal/shared/model"
)

// mockMembers 模拟成员后端
type mockMembers struct {
	nodes []*model.Node
	err   error
}

func (m *mockMembers) ListAlive(ctx context.Context) ([]*model.Node, error) {
	return m.nodes, m.err
}

// mockReleaser 模拟节点释放
type mockReleaser struct {
	released map[string]int64
	calls    []string
}

func (m *mockReleaser) ReleaseNode(ctx context.Context, nodeID string) (int64, error) {
	m.calls = append(m.calls, nodeID)
	return m.released[nodeID], nil
}

func newMux(h *Handler, cfg auth.Config) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return auth.Middleware(cfg)(mux)
}

func TestHandler_List(t *testing.T) {
	now := time.Now()
	members := &mockMembers{nodes: []*model.Node{
		{ID: "node-b", Hostname: "b", StartedAt: now, LastHeartbeat: now},
		{ID: "node-a", Hostname: "a", StartedAt: now, LastHeartbeat: now},
	}}
	h := NewHandler(members, &mockReleaser{}, "node-a", auth.DefaultConfig())

	rec := httptest.NewRecorder()
	newMux(h, auth.DefaultConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Membership != "enabled" || len(resp.Nodes) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Nodes[0].ID != "node-a" || !resp.Nodes[0].Self {
		t.Errorf("first node = %+v, want self node-a", resp.Nodes[0])
	}
	if resp.Nodes[1].Self {
		t.Errorf("node-b marked as self")
	}
}

func TestHandler_ListWithoutMembership(t *testing.T) {
	h := NewHandler(nil, &mockReleaser{}, "node-a", auth.DefaultConfig())

	rec := httptest.NewRecorder()
	newMux(h, auth.DefaultConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))

	var resp ListResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Membership != "disabled" || len(resp.Nodes) != 1 || resp.Nodes[0].ID != "node-a" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandler_ListMembershipDown(t *testing.T) {
	h := NewHandler(&mockMembers{err: errors.New("redis down")}, &mockReleaser{}, "node-a", auth.DefaultConfig())

	rec := httptest.NewRecorder()
	newMux(h, auth.DefaultConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandler_Release(t *testing.T) {
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	adminToken, _ := auth.GenerateAccessToken(cfg, "admin", auth.RoleAdmin)
	operatorToken, _ := auth.GenerateAccessToken(cfg, "ops", auth.RoleOperator)

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantCalls  int
	}{
		{name: "未认证", path: "/api/v1/nodes/node-b/release", wantStatus: http.StatusUnauthorized},
		{name: "非管理员", path: "/api/v1/nodes/node-b/release", token: operatorToken, wantStatus: http.StatusForbidden},
		{name: "释放本节点", path: "/api/v1/nodes/node-a/release", token: adminToken, wantStatus: http.StatusConflict},
		{name: "成功释放", path: "/api/v1/nodes/node-b/release", token: adminToken, wantStatus: http.StatusOK, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releaser := &mockReleaser{released: map[string]int64{"node-b": 3}}
			h := NewHandler(nil, releaser, "node-a", cfg)

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			newMux(h, cfg).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if len(releaser.calls) != tt.wantCalls {
				t.Errorf("release calls = %d, want %d", len(releaser.calls), tt.wantCalls)
			}
			if tt.wantStatus == http.StatusOK {
				var resp ReleaseResponse
				json.NewDecoder(rec.Body).Decode(&resp)
				if resp.Released != 3 || resp.NodeID != "node-b" {
					t.Errorf("resp = %+v", resp)
				}
			}
		})
	}
}
