// Package httpserver exposes the panel's REST API: auth, user and account
// management, bot settings documents, the automation queue, and report files.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alone132405/panel-bot-sub001/internal/auth/rbac"
	jwt "github.com/alone132405/panel-bot-sub001/internal/auth/token"
	"github.com/alone132405/panel-bot-sub001/internal/autopilot"
	"github.com/alone132405/panel-bot-sub001/internal/broadcast"
	"github.com/alone132405/panel-bot-sub001/internal/directory"
	"github.com/alone132405/panel-bot-sub001/internal/settings"
)

// AutomationQueue is the slice of the queue the HTTP layer needs.
type AutomationQueue interface {
	Enqueue(identifier string, ch broadcast.Publisher) (int, error)
	Status() autopilot.Snapshot
}

type Config struct {
	Addr       string
	ReportsDir string
	LoginTTL   time.Duration
}

type Server struct {
	cfg    Config
	repo   *directory.Repo
	store  *settings.Store
	queue  AutomationQueue
	hub    *broadcast.Hub
	jwtMgr *jwt.Manager
	policy rbac.Policy

	loginMu       sync.Mutex
	loginAttempts map[string][]time.Time

	httpSrv *http.Server
}

func NewServer(cfg Config, repo *directory.Repo, store *settings.Store, queue AutomationQueue, hub *broadcast.Hub, jwtMgr *jwt.Manager, policy rbac.Policy) *Server {
	if cfg.LoginTTL <= 0 {
		cfg.LoginTTL = 12 * time.Hour
	}
	return &Server{
		cfg:           cfg,
		repo:          repo,
		store:         store,
		queue:         queue,
		hub:           hub,
		jwtMgr:        jwtMgr,
		policy:        policy,
		loginAttempts: map[string][]time.Time{},
	}
}

func (s *Server) ginEngine() *gin.Engine {
	r := gin.New()
	r.Use(s.ginReqID(), s.ginCORS(), s.ginLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { s.JSON(c, 200, gin.H{"ok": true}) })
	r.GET("/readyz", func(c *gin.Context) { s.JSON(c, 200, gin.H{"ok": true}) })

	s.addAuthRoutes(r)
	s.addUsersRoutes(r)
	s.addAccountsRoutes(r)
	s.addSettingsRoutes(r)
	s.addAutomationRoutes(r)
	s.addReportsRoutes(r)
	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: s.ginEngine()}
	slog.Info("panel http listening", "addr", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ginReqID injects/propagates an X-Request-ID for traceability.
func (s *Server) ginReqID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get("X-Request-ID")
		if strings.TrimSpace(rid) == "" {
			rid = uuid.NewString()
		}
		c.Set("reqid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func (s *Server) ginCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		st := c.Writer.Status()
		lvl := slog.LevelInfo
		if st >= 500 {
			lvl = slog.LevelError
		} else if st >= 400 {
			lvl = slog.LevelWarn
		}
		rid, _ := c.Get("reqid")
		slog.Log(c.Request.Context(), lvl, "http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", st,
			"dur", time.Since(start).Round(time.Millisecond).String(),
			"reqid", rid,
		)
	}
}

// respondError sends the unified error envelope.
func (s *Server) respondError(c *gin.Context, status int, code, message string) {
	rid, _ := c.Get("reqid")
	s.JSON(c, status, gin.H{
		"success":    false,
		"error":      code,
		"message":    message,
		"request_id": fmt.Sprint(rid),
	})
	c.Abort()
}

// auth extracts and verifies the bearer token; returns username, role.
func (s *Server) auth(r *http.Request) (string, string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		// SSE clients cannot set headers; allow the token as a query param.
		h = "Bearer " + strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return "", "", false
	}
	user, role, err := s.jwtMgr.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	if err != nil {
		return "", "", false
	}
	return user, role, true
}

// require checks authentication plus any of the listed permissions.
// Returns (user, role, true) on success; otherwise writes the error response.
func (s *Server) require(c *gin.Context, anyOf ...string) (string, string, bool) {
	user, role, ok := s.auth(c.Request)
	if !ok {
		s.respondError(c, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return "", "", false
	}
	if len(anyOf) == 0 {
		return user, role, true
	}
	for _, p := range anyOf {
		if s.policy.Can(role, p) {
			return user, role, true
		}
	}
	s.respondError(c, http.StatusForbidden, "forbidden", "forbidden")
	return user, role, false
}

// allowLogin rate-limits login attempts per ip|username.
func (s *Server) allowLogin(ip, username string) bool {
	key := fmt.Sprintf("%s|%s", strings.TrimSpace(ip), strings.TrimSpace(username))
	now := time.Now()
	window := now.Add(-5 * time.Minute)
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	arr := s.loginAttempts[key]
	kept := arr[:0]
	for _, t := range arr {
		if t.After(window) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= 10 { // max 10 attempts per 5 minutes
		s.loginAttempts[key] = kept
		return false
	}
	kept = append(kept, now)
	s.loginAttempts[key] = kept
	return true
}
