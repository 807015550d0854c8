package auth

import (
	"encoding/json"
	"log"
	"net/http"
)

// Handler 认证 HTTP 处理器
//
// 管理员凭据来自配置（用户名 + bcrypt 哈希），不依赖用户表。
type Handler struct {
	cfg Config
}

// NewHandler 创建认证处理器
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/token", h.Token)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token 管理员登录换取访问令牌
// POST /api/v1/auth/token
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Enabled() || h.cfg.AdminPasswordHash == "" {
		writeError(w, http.StatusNotFound, "authentication is not configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username != h.cfg.AdminUser || !CheckPassword(req.Password, h.cfg.AdminPasswordHash) {
		log.Printf("[auth.token] rejected username=%s", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := GenerateAccessToken(h.cfg, req.Username, RoleAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	ttl := h.cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultConfig().AccessTokenTTL
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	})
}

// Me 返回当前调用方
// GET /api/v1/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetAuthUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]string{"id": "anonymous", "role": RoleAdmin})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": user.ID, "role": user.Role})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
