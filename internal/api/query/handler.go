package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/domain"
	"github.com/liliang-cn/search4all/internal/service"
)

// Handler handles the query endpoint
type Handler struct {
	queryService *service.QueryService
	logger       *zap.Logger
}

// NewHandler creates a new query handler
func NewHandler(queryService *service.QueryService, logger *zap.Logger) *Handler {
	return &Handler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers query routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/query", h.Query)
	r.GET("/query", h.Query)
}

// Query answers a question. Generated answers are streamed; stored answers
// are returned verbatim as plain text.
func (h *Handler) Query(c *gin.Context) {
	req, err := bindQuery(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.queryService.Answer(c.Request.Context(), req)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Internal server error."})
		return
	}

	if answer.Replayed() {
		c.Header("Content-Type", "text/plain; charset=utf-8")
	} else {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
	}
	c.Status(http.StatusOK)

	if err := answer.Deliver(c.Writer); err != nil {
		h.logger.Warn("Answer delivery ended early",
			zap.String("search_uuid", req.SearchUUID),
			zap.Error(err),
		)
	}
}

// bindQuery merges request fields from the query string and then the body,
// which may be JSON or a form. Body fields win.
func bindQuery(r *http.Request) (domain.QueryRequest, error) {
	params := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if r.Body != nil && r.ContentLength != 0 {
		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(contentType, "application/json"):
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return domain.QueryRequest{}, fmt.Errorf("invalid JSON body: %w", err)
			}
			for k, v := range body {
				params[k] = v
			}
		case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"),
			strings.HasPrefix(contentType, "multipart/form-data"):
			if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
				return domain.QueryRequest{}, fmt.Errorf("invalid form body: %w", err)
			}
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	}

	return domain.QueryRequest{
		Query:                    stringParam(params["query"]),
		SearchUUID:               stringParam(params["search_uuid"]),
		GenerateRelatedQuestions: boolParam(params["generate_related_questions"], true),
	}, nil
}

func stringParam(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// boolParam accepts JSON booleans and numbers or strings like "false", "0",
// "no" and "off". Anything unrecognised yields def.
func boolParam(v any, def bool) bool {
	switch v := v.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
