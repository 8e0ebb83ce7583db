package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) addAuthRoutes(r *gin.Engine) {
	r.POST("/api/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
			s.respondError(c, http.StatusBadRequest, "bad_request", "username and password required")
			return
		}
		if !s.allowLogin(c.ClientIP(), req.Username) {
			s.respondError(c, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
			return
		}
		u, err := s.repo.Verify(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		tok, err := s.jwtMgr.Sign(u.Username, u.Role, s.cfg.LoginTTL)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), u.Username, "login", "", nil)
		s.JSON(c, 200, gin.H{"success": true, "token": tok, "username": u.Username, "role": u.Role})
	})

	r.GET("/api/auth/me", func(c *gin.Context) {
		user, role, ok := s.require(c)
		if !ok {
			return
		}
		s.JSON(c, 200, gin.H{"username": user, "role": role})
	})
}
