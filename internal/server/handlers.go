package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/persistence"
	"blogwire/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Keyword string `json:"keyword"`
}

// GenerateResponse reports the outcome of one ad-hoc generation
type GenerateResponse struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason,omitempty"`
	Message string        `json:"message"`
	Article *core.Article `json:"article,omitempty"`
}

// CycleRequest is the body of POST /api/cycle
type CycleRequest struct {
	Count    int  `json:"count"`
	Discover bool `json:"discover"`
}

// LinkRequest is the body of POST /api/affiliate-links
type LinkRequest struct {
	Keyword  string `json:"keyword"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Active   *bool  `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := map[string]string{"database": "ok"}
	status, code := "ok", http.StatusOK

	if err := s.db.Ping(c.Request.Context()); err != nil {
		checks["database"] = "error"
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status: status,
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
		Checks: checks,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := persistence.CollectStats(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleListTopics handles GET /api/topics?status=&limit=&offset=
func (s *Server) handleListTopics(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	topics, err := s.db.Topics().List(c.Request.Context(), opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if topics == nil {
		topics = []core.Topic{}
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics, "count": len(topics)})
}

func (s *Server) handleListLinks(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	links, err := s.db.AffiliateLinks().List(c.Request.Context(), opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if links == nil {
		links = []core.AffiliateLink{}
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

func (s *Server) handleCreateLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	link := &core.AffiliateLink{
		Keyword:  req.Keyword,
		URL:      strings.TrimSpace(req.URL),
		Platform: req.Platform,
		Active:   req.Active == nil || *req.Active,
	}
	if err := s.db.AffiliateLinks().Create(c.Request.Context(), link); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// handleLinkClick records a reader click on an affiliate link.
func (s *Server) handleLinkClick(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.db.AffiliateLinks().IncrementClicks(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	link, err := s.db.AffiliateLinks().Get(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": link.ID, "url": link.URL, "click_count": link.ClickCount})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		s.respondError(c, errors.Join(errors.New("keyword is required"), core.ErrValidation))
		return
	}

	// a client hanging up must not interrupt a cycle mid-generation
	outcome := s.runner.GenerateOne(context.WithoutCancel(c.Request.Context()), req.Keyword)
	resp := GenerateResponse{
		Success: outcome.Success(),
		Reason:  outcome.Reason,
		Message: outcome.Message(),
		Article: outcome.Article,
	}
	code := http.StatusOK
	if outcome.Reason == core.ReasonLocked {
		code = http.StatusConflict
	}
	c.JSON(code, resp)
}

func (s *Server) handleCycle(c *gin.Context) {
	var req CycleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, invalidBody(err))
			return
		}
	}
	if req.Count < 0 {
		s.respondError(c, errors.Join(errors.New("count must not be negative"), core.ErrValidation))
		return
	}

	result, err := s.runner.RunCycle(context.WithoutCancel(c.Request.Context()), pipeline.CycleOptions{Count: req.Count, Discover: req.Discover})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listOptions(c *gin.Context) (persistence.ListOptions, error) {
	opts := persistence.ListOptions{Status: c.Query("status")}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errors.Join(errors.New("invalid "+name), core.ErrValidation)
		}
		*dst = n
	}
	if opts.Limit == 0 {
		opts.Limit = 100
	}
	return opts, nil
}

func invalidBody(err error) error {
	return errors.Join(errors.New("invalid request body: "+err.Error()), core.ErrValidation)
}

// respondError maps the error taxonomy onto HTTP status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate):
		code = http.StatusConflict
	case errors.Is(err, core.ErrLocked):
		code = http.StatusConflict
	}
	_ = c.Error(err)
	c.JSON(code, errorResponse{Error: err.Error()})
}
