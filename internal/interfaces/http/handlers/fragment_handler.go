package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/dto"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/http/middleware"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// ReportLinker hands out download links for stored reports.
type ReportLinker interface {
	PresignReport(ctx context.Context, jobID string) (string, error)
}

// FragmentHandler serves the fragmentation API.
type FragmentHandler struct {
	svc      fragmentation.Service
	defaults func() fragmentation.Options
	reports  ReportLinker
	logger   logging.Logger
}

// NewFragmentHandler wires the handler.  defaults supplies the request
// options in force, so a config reload is picked up by the next request.
// reports may be nil.
func NewFragmentHandler(svc fragmentation.Service, defaults func() fragmentation.Options, reports ReportLinker, logger logging.Logger) *FragmentHandler {
	if defaults == nil {
		defaults = fragmentation.DefaultOptions
	}
	return &FragmentHandler{svc: svc, defaults: defaults, reports: reports, logger: logger}
}

// RegisterRoutes mounts the API under rg.
func (h *FragmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/fragment", h.Fragment)
	rg.POST("/cut", h.Cut)
	rg.GET("/runs", h.ListRuns)
	rg.GET("/runs/:id", h.GetRun)
	rg.GET("/runs/:id/report", h.ReportURL)
	rg.GET("/lineage", h.Lineage)
}

// Fragment handles POST /fragment.
func (h *FragmentHandler) Fragment(c *gin.Context) {
	var req types.FragmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, middleware.BindError(err))
		return
	}
	if err := dto.ValidateFragmentRequest(&req); err != nil {
		middleware.Abort(c, err)
		return
	}

	ctx := c.Request.Context()
	opts := dto.MergeOptions(h.defaults(), req.Options)
	report, err := h.svc.Generate(ctx, dto.ToInputs(req.Molecules), opts)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	h.logger.WithContext(ctx).Info("fragment request served",
		logging.String("job_id", report.Provenance.JobID),
		logging.Int("molecules", len(req.Molecules)),
		logging.Int("skipped", len(report.Skipped)),
	)
	c.JSON(http.StatusOK, dto.FromReport(report))
}

// Cut handles POST /cut.
func (h *FragmentHandler) Cut(c *gin.Context) {
	var req types.CutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, middleware.BindError(err))
		return
	}
	if strings.TrimSpace(req.SMILES) == "" {
		middleware.Abort(c, errors.New(errors.ErrCodeValidation, "smiles is required"))
		return
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = h.defaults().Threshold
	}
	res, err := h.svc.Cut(c.Request.Context(), fragmentation.Input{
		Title:   req.Title,
		SMILES:  req.SMILES,
		Weights: req.WBO,
	}, threshold)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromCut(res))
}

// GetRun handles GET /runs/:id.
func (h *FragmentHandler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromRun(run))
}

// ListRuns handles GET /runs?limit=n, newest first.
func (h *FragmentHandler) ListRuns(c *gin.Context) {
	runs, err := h.svc.ListRuns(c.Request.Context(), parseLimit(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Summarize(runs))
}

// ReportURL handles GET /runs/:id/report.
func (h *FragmentHandler) ReportURL(c *gin.Context) {
	if h.reports == nil {
		middleware.Abort(c, errors.New(errors.ErrCodeServiceUnavailable, "report store is not configured"))
		return
	}
	id := c.Param("id")
	url, err := h.reports.PresignReport(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, types.ReportURLResponse{JobID: id, URL: url})
}

// Lineage handles GET /lineage?smiles=.
func (h *FragmentHandler) Lineage(c *gin.Context) {
	parent := c.Query("smiles")
	if strings.TrimSpace(parent) == "" {
		middleware.Abort(c, errors.New(errors.ErrCodeValidation, "query parameter smiles is required"))
		return
	}
	frags, err := h.svc.Lineage(c.Request.Context(), parent)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	if frags == nil {
		frags = []string{}
	}
	c.JSON(http.StatusOK, types.LineageResponse{ParentSMILES: parent, Fragments: frags})
}
