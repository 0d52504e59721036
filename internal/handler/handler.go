// Package handler 實現 HTTP API
//
// 路由：
//
//	GET /health             健康檢查
//	GET /api/stats/global   伺服器與戰績總覽
//	GET /api/stats/{name}   單一玩家戰績
//	GET /api/me             目前登入身分（需要 token）
//	GET /api/stats/me       自己的戰績（需要 token）
//	GET /ws                 WebSocket 遊戲連線
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koopa0/durak/internal/auth"
	"github.com/koopa0/durak/internal/lobby"
	"github.com/koopa0/durak/internal/stats"
	apperrors "github.com/koopa0/durak/pkg/errors"
	"github.com/koopa0/durak/pkg/logger"
)

// queryTimeout 單次戰績查詢的上限
const queryTimeout = 3 * time.Second

// LiveStats 提供即時對局數據
type LiveStats interface {
	Stats() lobby.Snapshot
}

// ConnectionCounter 提供目前的 WebSocket 連線數
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler HTTP 處理器
type Handler struct {
	store       stats.Store
	live        LiveStats
	connections ConnectionCounter
	verifier    *auth.Verifier
	ws          http.Handler
	logger      *slog.Logger
}

// New 創建 Handler；ws 為 nil 時不掛載 /ws
func New(store stats.Store, live LiveStats, connections ConnectionCounter, verifier *auth.Verifier, ws http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		store:       store,
		live:        live,
		connections: connections,
		verifier:    verifier,
		ws:          ws,
		logger:      logger,
	}
}

// Routes 設置路由
//
// 中間件鏈：RequestID → RealIP → recovery → logger → 業務處理
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recovery)
	r.Use(h.logRequest)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats/global", h.globalStats)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.verifier))
			r.Get("/me", h.me)
			r.Get("/stats/me", h.myStats)
		})

		r.Get("/stats/{name}", h.playerStats)
	})

	if h.ws != nil {
		r.Handle("/ws", h.ws)
	}
	return r
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// GlobalStats /api/stats/global 的內容
type GlobalStats struct {
	TotalPlayers   int `json:"totalPlayers"`
	TotalGames     int `json:"totalGames"`
	ActiveSessions int `json:"activeSessions"`
	WaitingPlayers int `json:"waitingPlayers"`
	PlayersInGame  int `json:"playersInGame"`
	Connections    int `json:"connections"`
}

// globalStats 伺服器總覽
//
// API: GET /api/stats/global
// Response: {"stats": {"totalPlayers": 3, "totalGames": 2, "activeSessions": 1, ...}}
func (h *Handler) globalStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	summary, err := h.store.Summary(ctx)
	if err != nil {
		h.errorJSON(w, r, err)
		return
	}

	snap := h.live.Stats()
	out := GlobalStats{
		TotalPlayers:   summary.TotalPlayers,
		TotalGames:     summary.TotalGames,
		ActiveSessions: snap.ActiveSessions,
		WaitingPlayers: snap.WaitingPlayers,
		PlayersInGame:  snap.PlayersInGame,
	}
	if h.connections != nil {
		out.Connections = h.connections.ConnectionCount()
	}
	h.writeJSON(w, map[string]any{"stats": out}, http.StatusOK)
}

// playerStats 玩家戰績，名稱不分大小寫；沒有紀錄時回傳全 0
//
// API: GET /api/stats/{name}
func (h *Handler) playerStats(w http.ResponseWriter, r *http.Request) {
	h.statsFor(w, r, chi.URLParam(r, "name"))
}

// me 目前的登入身分
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.errorJSON(w, r, apperrors.ErrMissingToken)
		return
	}
	h.writeJSON(w, id, http.StatusOK)
}

// myStats 以 token 中的 username 查詢戰績
func (h *Handler) myStats(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.errorJSON(w, r, apperrors.ErrMissingToken)
		return
	}
	h.statsFor(w, r, id.Username)
}

func (h *Handler) statsFor(w http.ResponseWriter, r *http.Request, name string) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	st, err := h.store.Get(ctx, name)
	if err != nil {
		h.errorJSON(w, r, err)
		return
	}
	h.writeJSON(w, map[string]any{"stats": st}, http.StatusOK)
}

// === 工具函數 ===

// writeJSON 寫入 JSON 響應
func (h *Handler) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

// errorJSON 寫入錯誤響應：{"error": {"code": ..., "message": ...}}
func (h *Handler) errorJSON(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeInternal, "internal server error")
	}

	status := apperrors.HTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, map[string]any{"error": appErr}, status)
}

// === 中間件 ===

// logRequest 記錄請求日誌（方法、路徑、狀態碼、耗時、IP）
func (h *Handler) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)

		// WebSocket 需要原本的 ResponseWriter 才能 Hijack
		if r.URL.Path == "/ws" {
			h.logger.InfoContext(ctx, "websocket upgrade", "ip", r.RemoteAddr)
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		h.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"ip", r.RemoteAddr,
		)
	})
}

// recovery 恢復 panic
func (h *Handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic recovered",
					"error", rec,
					"path", r.URL.Path,
				)
				h.writeJSON(w, map[string]any{
					"error": apperrors.New(apperrors.ErrCodeInternal, "internal server error"),
				}, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter 包裝 http.ResponseWriter 以捕獲狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader 攔截狀態碼
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Write 確保 WriteHeader 被調用
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
