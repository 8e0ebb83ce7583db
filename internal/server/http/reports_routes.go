package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// Report files are whatever the bot drops under reports/<identifier>/; the
// panel only browses and serves them, it never parses them.
func (s *Server) addReportsRoutes(r *gin.Engine) {
	grp := r.Group("/api/reports")

	grp.GET(":identifier", func(c *gin.Context) {
		user, role, ok := s.require(c, "reports:read")
		if !ok {
			return
		}
		id := c.Param("identifier")
		if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
			s.respondError(c, http.StatusBadRequest, "bad_request", "invalid identifier")
			return
		}
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		dir := filepath.Join(s.cfg.ReportsDir, id)
		ents, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				s.JSON(c, 200, gin.H{"items": []gin.H{}})
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := []gin.H{}
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, gin.H{"name": e.Name(), "size": info.Size(), "modified_at": info.ModTime()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
		s.JSON(c, 200, gin.H{"items": out})
	})

	grp.GET(":identifier/:file", func(c *gin.Context) {
		user, role, ok := s.require(c, "reports:read")
		if !ok {
			return
		}
		id := c.Param("identifier")
		name := c.Param("file")
		if strings.ContainsAny(id, "/\\") || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
			s.respondError(c, http.StatusBadRequest, "bad_request", "invalid path")
			return
		}
		if !s.ownsOrAdmin(c, user, role, id) {
			return
		}
		path := filepath.Join(s.cfg.ReportsDir, id, name)
		if _, err := os.Stat(path); err != nil {
			s.respondError(c, http.StatusNotFound, "not_found", "report not found")
			return
		}
		c.FileAttachment(path, name)
	})
}
