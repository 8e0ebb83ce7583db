package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alone132405/panel-bot-sub001/internal/directory"
)

func (s *Server) addAutomationRoutes(r *gin.Engine) {
	grp := r.Group("/api/automation")

	// queue a desktop-automation run that makes the bot reload the
	// identifier's settings files
	grp.POST("/apply-changes", func(c *gin.Context) {
		user, role, ok := s.require(c, "automation:run")
		if !ok {
			return
		}
		var req struct {
			Identifier string `json:"identifier"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
			s.respondError(c, http.StatusBadRequest, "bad_request", "identifier required")
			return
		}
		id := strings.TrimSpace(req.Identifier)
		ctx := c.Request.Context()

		exists, err := s.repo.AccountExists(ctx, id)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if !exists {
			s.respondError(c, http.StatusNotFound, "not_found", "unknown identifier")
			return
		}
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		active, err := s.repo.SubscriptionActive(ctx, id, time.Now())
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if !active {
			s.respondError(c, http.StatusForbidden, "subscription_expired", "subscription has expired")
			return
		}

		pos, err := s.queue.Enqueue(id, s.hub)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		_ = s.repo.LogActivity(ctx, user, "apply_changes", id, map[string]any{"queue_position": pos})
		s.JSON(c, http.StatusAccepted, gin.H{
			"success":       true,
			"message":       "Request added to queue",
			"queuePosition": pos,
		})
	})

	// non-blocking queue status
	grp.GET("/apply-changes", func(c *gin.Context) {
		if _, _, ok := s.require(c, "automation:read"); !ok {
			return
		}
		st := s.queue.Status()
		s.JSON(c, 200, gin.H{
			"isRunning":         st.Running,
			"queueLength":       st.QueueLength,
			"queuedIdentifiers": st.QueuedIdentifiers,
		})
	})

	// live status stream (SSE); identifier scopes the channel, admins may
	// omit it to watch everything including queue updates
	grp.GET("/events", func(c *gin.Context) {
		user, role, ok := s.require(c, "automation:read")
		if !ok {
			return
		}
		id := strings.TrimSpace(c.Query("identifier"))
		if id == "" && role != directory.RoleAdmin {
			s.respondError(c, http.StatusBadRequest, "bad_request", "identifier required")
			return
		}
		if id != "" && !s.ownsOrAdmin(c, user, role, id) {
			return
		}

		events, cancel := s.hub.Subscribe(id)
		defer cancel()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Flush()

		keepalive := time.NewTicker(25 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-keepalive.C:
				c.Writer.WriteString(": keepalive\n\n")
				c.Writer.Flush()
			case ev, open := <-events:
				if !open {
					return
				}
				body, err := jsonAPI.Marshal(ev)
				if err != nil {
					continue
				}
				c.Writer.WriteString("event: " + ev.Type + "\n")
				c.Writer.WriteString("data: " + string(body) + "\n\n")
				c.Writer.Flush()
			}
		}
	})
}
