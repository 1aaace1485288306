package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/gigrank/internal/engine"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/pipeline"
)

const healthPingTimeout = time.Second

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Outcome string `json:"outcome,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	status := "ok"
	body := gin.H{}
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			status = "degraded"
			body["store_error"] = err.Error()
		}
	}
	if s.deps.Runs != nil {
		body["retry_queue"] = s.deps.Runs.QueueDepth()
	}
	if s.deps.Scheduler != nil {
		body["scheduler"] = s.deps.Scheduler.Stats()
	}
	body["status"] = status
	c.JSON(http.StatusOK, body)
}

func (s *Server) ingestScan(c *gin.Context) {
	res, err := s.deps.Scanner.Scan(c.Request.Context(), s.deps.Root)
	if err != nil {
		s.logger.Error("scan request failed", "root", s.deps.Root, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) ingestRun(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := s.deps.Runs.Submit(c.Request.Context(), body)
	switch {
	case engine.IsRejected(err):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Outcome: engine.OutcomeRejected})
	case engine.IsClosed(err):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) keywords(c *gin.Context) {
	limit, ok := intQuery(c, "limit", pipeline.DefaultLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Pipeline.KeywordRecommendations(c.Request.Context(), limit))
}

func (s *Server) opportunities(c *gin.Context) {
	q := pipeline.OpportunityQuery{Keyword: strings.TrimSpace(c.Query("keyword"))}
	var ok bool
	if q.Limit, ok = intQuery(c, "limit", pipeline.DefaultLimit); !ok {
		return
	}
	if q.SafeOnly, ok = boolQuery(c, "safe_only"); !ok {
		return
	}
	if q.ApplyOnly, ok = boolQuery(c, "apply_only"); !ok {
		return
	}
	if q.FreshOnly, ok = boolQuery(c, "fresh_only"); !ok {
		return
	}
	if raw, present := c.GetQuery("max_proposals"); present && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badQuery(c, "max_proposals", err)
			return
		}
		q.MaxProposals = &n
	}
	c.JSON(http.StatusOK, s.deps.Pipeline.Opportunities(c.Request.Context(), q))
}

func (s *Server) draft(c *gin.Context) {
	d, ok := s.deps.Pipeline.Draft(c.Request.Context(), c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "draft not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) queueTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Pipeline.QueueTelemetry(c.Request.Context()))
}

func (s *Server) postQueueTelemetry(c *gin.Context) {
	var t model.QueueTelemetry
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.deps.Pipeline.PostQueueTelemetry(c.Request.Context(), t))
}

func (s *Server) summary(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Pipeline.Summary(c.Request.Context()))
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badQuery(c, name, err)
		return 0, false
	}
	return n, true
}

func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		badQuery(c, name, err)
		return false, false
	}
	return b, true
}

func badQuery(c *gin.Context, name string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name + ": " + err.Error()})
}
