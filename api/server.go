package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newsarchive/newsfeed"
	"github.com/pevans/newsarchive/scraper"
	"github.com/pevans/newsarchive/sources"
)

// defaultRunLimit bounds GET /runs when no limit is given.
const defaultRunLimit = 20

// Registry is the read side of the source registry.
type Registry interface {
	Get(id string) (scraper.SourceConfig, error)
	IDs() []string
}

// StateReader exposes stored checkpoints and run history.
type StateReader interface {
	GetState(sourceID string) (*sources.SourceState, error)
	ListRuns(limit int) ([]sources.RunRecord, error)
}

// PartitionReader exposes the archive on disk.
type PartitionReader interface {
	Sources() ([]string, error)
	Years(sourceID string) ([]string, error)
	ReadPartition(sourceID, year string) (*newsfeed.PartitionResult, error)
}

// Server is the read-only status API.
type Server struct {
	registry   Registry
	state      StateReader
	partitions PartitionReader
}

// NewServer creates a status API server.
func NewServer(registry Registry, state StateReader, partitions PartitionReader) *Server {
	return &Server{
		registry:   registry,
		state:      state,
		partitions: partitions,
	}
}

// SetupRouter configures the Gin router with all status routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/sources", s.HandleListSources)
	api.GET("/sources/:id", s.HandleGetSource)
	api.GET("/runs", s.HandleListRuns)
	api.GET("/partitions", s.HandleListPartitionSources)
	api.GET("/partitions/:source", s.HandleListYears)
	api.GET("/partitions/:source/:year", s.HandleGetPartition)

	return router
}

// SourceStatus pairs a source's configuration with its stored progress.
type SourceStatus struct {
	Source scraper.SourceConfig `json:"source"`
	State  *sources.SourceState `json:"state,omitempty"`
}

// ListSourcesResponse represents the response for GET /api/v1/sources.
type ListSourcesResponse struct {
	Sources []SourceStatus `json:"sources"`
	Total   int            `json:"total"`
}

// RunResponse is one stored run. Summary is the raw run summary document.
type RunResponse struct {
	RunID      string          `json:"run_id"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Summary    json.RawMessage `json:"summary"`
}

// ListRunsResponse represents the response for GET /api/v1/runs.
type ListRunsResponse struct {
	Runs  []RunResponse `json:"runs"`
	Total int           `json:"total"`
}

// ListYearsResponse represents the response for GET /api/v1/partitions/:source.
type ListYearsResponse struct {
	SourceID string   `json:"source_id"`
	Years    []string `json:"years"`
}

// PartitionResponse represents the response for
// GET /api/v1/partitions/:source/:year.
type PartitionResponse struct {
	SourceID string                   `json:"source_id"`
	Year     string                   `json:"year"`
	Units    int                      `json:"units"`
	Articles []newsfeed.ArticleRecord `json:"articles"`
	Total    int                      `json:"total"`
	Errors   []string                 `json:"errors,omitempty"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sources.ErrUnknownSource):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, errorResponse("not_found", "partition not found"))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// stateFor returns the stored state for id, or nil when it has none.
func (s *Server) stateFor(id string) (*sources.SourceState, error) {
	state, err := s.state.GetState(id)
	if errors.Is(err, sources.ErrStateNotFound) {
		return nil, nil
	}
	return state, err
}

// HandleListSources handles GET /api/v1/sources.
func (s *Server) HandleListSources(c *gin.Context) {
	ids := s.registry.IDs()
	statuses := make([]SourceStatus, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.registry.Get(id)
		if err != nil {
			s.handleError(c, err)
			return
		}
		state, err := s.stateFor(id)
		if err != nil {
			s.handleError(c, err)
			return
		}
		statuses = append(statuses, SourceStatus{Source: cfg, State: state})
	}

	c.JSON(http.StatusOK, ListSourcesResponse{
		Sources: statuses,
		Total:   len(statuses),
	})
}

// HandleGetSource handles GET /api/v1/sources/:id.
func (s *Server) HandleGetSource(c *gin.Context) {
	id := c.Param("id")

	cfg, err := s.registry.Get(id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	state, err := s.stateFor(id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SourceStatus{Source: cfg, State: state})
}

// HandleListRuns handles GET /api/v1/runs.
func (s *Server) HandleListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if limitParam := c.Query("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("validation_error", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.state.ListRuns(limit)
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := ListRunsResponse{Runs: make([]RunResponse, 0, len(runs))}
	for _, run := range runs {
		summary := json.RawMessage(run.Summary)
		if !json.Valid(summary) {
			summary = nil
		}
		resp.Runs = append(resp.Runs, RunResponse{
			RunID:      run.RunID.String(),
			StartedAt:  run.StartedAt.Format(time.RFC3339),
			FinishedAt: run.FinishedAt.Format(time.RFC3339),
			Summary:    summary,
		})
	}
	resp.Total = len(resp.Runs)

	c.JSON(http.StatusOK, resp)
}

// HandleListPartitionSources handles GET /api/v1/partitions.
func (s *Server) HandleListPartitionSources(c *gin.Context) {
	ids, err := s.partitions.Sources()
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": ids, "total": len(ids)})
}

// HandleListYears handles GET /api/v1/partitions/:source.
func (s *Server) HandleListYears(c *gin.Context) {
	sourceID := c.Param("source")
	if !validSegment(sourceID) {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid source id"))
		return
	}

	years, err := s.partitions.Years(sourceID)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if len(years) == 0 {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "no partitions for source "+sourceID))
		return
	}

	c.JSON(http.StatusOK, ListYearsResponse{SourceID: sourceID, Years: years})
}

// HandleGetPartition handles GET /api/v1/partitions/:source/:year.
func (s *Server) HandleGetPartition(c *gin.Context) {
	sourceID := c.Param("source")
	year := c.Param("year")
	if !validSegment(sourceID) || !validYear(year) {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid source id or year"))
		return
	}

	result, err := s.partitions.ReadPartition(sourceID, year)
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := PartitionResponse{
		SourceID: result.SourceID,
		Year:     result.Year,
		Units:    len(result.Units),
		Articles: result.Articles,
		Total:    len(result.Articles),
	}
	if resp.Articles == nil {
		resp.Articles = []newsfeed.ArticleRecord{}
	}
	for _, readErr := range result.Errors {
		resp.Errors = append(resp.Errors, readErr.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// validSegment rejects ids that could escape the storage root.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func validYear(year string) bool {
	if year == newsfeed.UnknownYear {
		return true
	}
	_, err := strconv.Atoi(year)
	return err == nil
}
