package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alone132405/panel-bot-sub001/internal/directory"
)

func (s *Server) addUsersRoutes(r *gin.Engine) {
	grp := r.Group("/api/users")

	grp.GET("", func(c *gin.Context) {
		if _, _, ok := s.require(c, "users:read"); !ok {
			return
		}
		users, err := s.repo.ListUsers(c.Request.Context())
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]gin.H, 0, len(users))
		for _, u := range users {
			out = append(out, gin.H{
				"id": u.ID, "username": u.Username, "display_name": u.DisplayName,
				"role": u.Role, "active": u.Active, "created_at": u.CreatedAt,
			})
		}
		s.JSON(c, 200, gin.H{"items": out})
	})

	grp.POST("", func(c *gin.Context) {
		admin, _, ok := s.require(c, "users:write")
		if !ok {
			return
		}
		var req struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
			Password    string `json:"password"`
			Role        string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
			s.respondError(c, http.StatusBadRequest, "bad_request", "username and password required")
			return
		}
		role := req.Role
		if role != directory.RoleAdmin {
			role = directory.RoleUser
		}
		u := &directory.UserRecord{Username: strings.TrimSpace(req.Username), DisplayName: req.DisplayName, Role: role, Active: true}
		if err := s.repo.CreateUser(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusConflict, "conflict", err.Error())
			return
		}
		if err := s.repo.SetPassword(c.Request.Context(), u.ID, req.Password); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "user_create", "", map[string]any{"username": u.Username, "role": role})
		s.JSON(c, 201, gin.H{"success": true, "id": u.ID})
	})

	grp.PUT(":id", func(c *gin.Context) {
		admin, _, ok := s.require(c, "users:write")
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "bad user id")
			return
		}
		var req struct {
			DisplayName *string `json:"display_name"`
			Role        *string `json:"role"`
			Active      *bool   `json:"active"`
			Password    *string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
		u, err := s.repo.GetUserByID(c.Request.Context(), uint(id))
		if err != nil {
			s.respondError(c, http.StatusNotFound, "not_found", "user not found")
			return
		}
		if req.DisplayName != nil {
			u.DisplayName = *req.DisplayName
		}
		if req.Role != nil && (*req.Role == directory.RoleAdmin || *req.Role == directory.RoleUser) {
			u.Role = *req.Role
		}
		if req.Active != nil {
			u.Active = *req.Active
		}
		if err := s.repo.UpdateUser(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if req.Password != nil && strings.TrimSpace(*req.Password) != "" {
			if err := s.repo.SetPassword(c.Request.Context(), u.ID, *req.Password); err != nil {
				s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "user_update", "", map[string]any{"username": u.Username})
		s.JSON(c, 200, gin.H{"success": true})
	})

	grp.DELETE(":id", func(c *gin.Context) {
		admin, _, ok := s.require(c, "users:write")
		if !ok {
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "bad user id")
			return
		}
		if err := s.repo.DeleteUser(c.Request.Context(), uint(id)); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), admin, "user_delete", "", map[string]any{"id": id})
		s.JSON(c, 200, gin.H{"success": true})
	})

	r.GET("/api/activity", func(c *gin.Context) {
		if _, _, ok := s.require(c, "users:read"); !ok {
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		items, err := s.repo.ListActivity(c.Request.Context(), limit)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		s.JSON(c, 200, gin.H{"items": items})
	})
}
