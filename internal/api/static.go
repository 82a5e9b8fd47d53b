package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// SetupStaticRoutes serves the web UI from dir at /ui and redirects / to it.
// An empty dir leaves both routes unregistered.
func SetupStaticRoutes(r *gin.Engine, dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to open ui dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("ui dir %s is not a directory", dir)
	}

	r.Static("/ui", dir)
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/ui/")
	})
	return nil
}
