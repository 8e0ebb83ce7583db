package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alone132405/panel-bot-sub001/internal/directory"
)

func (s *Server) addAccountsRoutes(r *gin.Engine) {
	grp := r.Group("/api/accounts")

	grp.GET("", func(c *gin.Context) {
		user, role, ok := s.require(c, "accounts:read")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var (
			accounts []*directory.AccountRecord
			err      error
		)
		if role == directory.RoleAdmin {
			accounts, err = s.repo.ListAccounts(ctx)
		} else {
			u, uerr := s.repo.GetUserByUsername(ctx, user)
			if uerr != nil {
				s.respondError(c, http.StatusInternalServerError, "internal_error", uerr.Error())
				return
			}
			accounts, err = s.repo.ListAccountsByUser(ctx, u.ID)
		}
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]gin.H, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, gin.H{
				"id": a.ID, "identifier": a.Identifier, "user_id": a.UserID,
				"note": a.Note, "created_at": a.CreatedAt,
			})
		}
		s.JSON(c, 200, gin.H{"items": out})
	})

	grp.POST("", func(c *gin.Context) {
		admin, _, ok := s.require(c, "accounts:write")
		if !ok {
			return
		}
		var req struct {
			Identifier string `json:"identifier"`
			UserID     uint   `json:"user_id"`
			Note       string `json:"note"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Identifier) == "" || req.UserID == 0 {
			s.respondError(c, http.StatusBadRequest, "bad_request", "identifier and user_id required")
			return
		}
		a := &directory.AccountRecord{Identifier: strings.TrimSpace(req.Identifier), UserID: req.UserID, Note: req.Note}
		if err := s.repo.CreateAccount(c.Request.Context(), a); err != nil {
			s.respondError(c, http.StatusConflict, "conflict", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "account_create", a.Identifier, map[string]any{"user_id": a.UserID})
		s.JSON(c, 201, gin.H{"success": true, "id": a.ID})
	})

	grp.DELETE(":id", func(c *gin.Context) {
		admin, _, ok := s.require(c, "accounts:write")
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "bad account id")
			return
		}
		if err := s.repo.DeleteAccount(c.Request.Context(), uint(id)); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "account_delete", "", map[string]any{"id": id})
		s.JSON(c, 200, gin.H{"success": true})
	})

	// extend (or create) the subscription backing an account
	grp.POST(":id/subscription", func(c *gin.Context) {
		admin, _, ok := s.require(c, "accounts:write")
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "bad account id")
			return
		}
		var req struct {
			ExpiresAt time.Time `json:"expires_at"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.ExpiresAt.IsZero() {
			s.respondError(c, http.StatusBadRequest, "bad_request", "expires_at required (RFC3339)")
			return
		}
		if err := s.repo.SetSubscription(c.Request.Context(), uint(id), req.ExpiresAt); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "subscription_set", "", map[string]any{"account_id": id, "expires_at": req.ExpiresAt})
		s.JSON(c, 200, gin.H{"success": true})
	})
}
