package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alone132405/panel-bot-sub001/internal/directory"
	"github.com/alone132405/panel-bot-sub001/internal/settings"
)

// ownsOrAdmin enforces that non-admin callers only touch identifiers assigned
// to them. Writes the error response on denial.
func (s *Server) ownsOrAdmin(c *gin.Context, user, role, identifier string) bool {
	if role == directory.RoleAdmin {
		return true
	}
	ok, err := s.repo.OwnsIdentifier(c.Request.Context(), user, identifier)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return false
	}
	if !ok {
		s.respondError(c, http.StatusForbidden, "forbidden", "identifier is not assigned to you")
		return false
	}
	return true
}

func (s *Server) addSettingsRoutes(r *gin.Engine) {
	grp := r.Group("/api/settings")

	grp.GET("", func(c *gin.Context) {
		if _, _, ok := s.require(c, "settings:read"); !ok {
			return
		}
		ids, err := s.store.List()
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		s.JSON(c, 200, gin.H{"identifiers": ids})
	})

	grp.GET(":identifier", func(c *gin.Context) {
		user, role, ok := s.require(c, "settings:read")
		if !ok {
			return
		}
		id := c.Param("identifier")
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		doc, err := s.store.Read(id)
		if err != nil {
			if errors.Is(err, settings.ErrNotFound) {
				s.respondError(c, http.StatusNotFound, "not_found", "no settings document for "+id)
				return
			}
			if errors.Is(err, settings.ErrBadIdentifier) {
				s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		c.Data(200, "application/json; charset=utf-8", doc)
	})

	grp.PUT(":identifier", func(c *gin.Context) {
		user, role, ok := s.require(c, "settings:write")
		if !ok {
			return
		}
		id := c.Param("identifier")
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "unreadable body")
			return
		}
		if err := s.store.Write(id, body); err != nil {
			if errors.Is(err, settings.ErrBadIdentifier) {
				s.respondError(c, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			s.respondError(c, http.StatusUnprocessableEntity, "invalid_document", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), user, "settings_write", id, nil)
		s.JSON(c, 200, gin.H{"success": true})
	})

	grp.PATCH(":identifier", func(c *gin.Context) {
		user, role, ok := s.require(c, "settings:write")
		if !ok {
			return
		}
		id := c.Param("identifier")
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		var req struct {
			Path  string          `json:"path"`
			Value json.RawMessage `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Path) == "" {
			s.respondError(c, http.StatusBadRequest, "bad_request", "path and value required")
			return
		}
		var value any
		if err := json.Unmarshal(req.Value, &value); err != nil {
			s.respondError(c, http.StatusBadRequest, "bad_request", "value is not valid JSON")
			return
		}
		if err := s.store.Patch(id, req.Path, value); err != nil {
			if errors.Is(err, settings.ErrNotFound) {
				s.respondError(c, http.StatusNotFound, "not_found", "no settings document for "+id)
				return
			}
			s.respondError(c, http.StatusUnprocessableEntity, "invalid_document", err.Error())
			return
		}
		_ = s.repo.LogActivity(c.Request.Context(), user, "settings_patch", id, map[string]any{"path": req.Path})
		s.JSON(c, 200, gin.H{"success": true})
	})
}
