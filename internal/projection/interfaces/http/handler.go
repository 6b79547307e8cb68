package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"solarmine-planner/internal/audit"
	"solarmine-planner/internal/auth"
	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
	"solarmine-planner/internal/projection/interfaces/export"
)

const dateLayout = "2006-01-02"

// ProjectionService is the application surface used by the handlers.
type ProjectionService interface {
	Run(ctx context.Context, req application.RunRequest) (*application.RunOutput, error)
	GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error)
	ListResults(ctx context.Context, query application.ResultQuery, g projection.Granularity) ([]projection.ProjectionResult, error)
	BuildReport(ctx context.Context, query application.ResultQuery, g projection.Granularity) (*application.ResultReport, error)
}

// BatchRunner runs independent projections in parallel.
type BatchRunner interface {
	RunAll(ctx context.Context, requests []application.RunRequest) []application.BatchResult
}

// MarketCollector triggers an immediate market snapshot.
type MarketCollector interface {
	CollectOnce(ctx context.Context) (projection.MarketSnapshot, error)
}

// Handler serves projection endpoints.
type Handler struct {
	service   ProjectionService
	batch     BatchRunner
	collector MarketCollector
	audit     audit.Logger
	logger    *log.Logger
	now       func() time.Time
}

// NewHandler constructs a Handler. Batch and collector are optional.
func NewHandler(service ProjectionService, batch BatchRunner, collector MarketCollector, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("projection handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, batch: batch, collector: collector, logger: logger, now: time.Now}, nil
}

// WithAuditLogger records mutating requests to l.
func (h *Handler) WithAuditLogger(l audit.Logger) *Handler {
	h.audit = l
	return h
}

// Register mounts the handler's routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/projections", h.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/projections/batch", h.handleBatch).Methods(http.MethodPost)
	api.HandleFunc("/projections/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/projections/{config}/{scenario}/results", h.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/projections/{config}/{scenario}/export.{format:xlsx|pdf}", h.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/market/collect", h.handleCollect).Methods(http.MethodPost)
}

type runRequest struct {
	RunID          string `json:"run_id"`
	SystemConfigID string `json:"system_config_id"`
	ScenarioID     string `json:"scenario_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Granularity    string `json:"granularity"`
}

func (req runRequest) toApplication() (application.RunRequest, error) {
	if req.SystemConfigID == "" || req.ScenarioID == "" {
		return application.RunRequest{}, errors.New("system_config_id and scenario_id are required")
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return application.RunRequest{}, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return application.RunRequest{}, errors.New("end_date must be YYYY-MM-DD")
	}
	g, err := projection.ParseGranularity(req.Granularity)
	if err != nil {
		return application.RunRequest{}, err
	}
	return application.RunRequest{
		RunID:          req.RunID,
		SystemConfigID: req.SystemConfigID,
		ScenarioID:     req.ScenarioID,
		StartDate:      start,
		EndDate:        end,
		Granularity:    g,
	}, nil
}

type runResponse struct {
	Run            projection.ProjectionRun      `json:"run"`
	Rows           []projection.ProjectionResult `json:"rows"`
	MonthlyRollups []projection.ProjectionResult `json:"monthly_rollups,omitempty"`
	AnnualRollups  []projection.ProjectionResult `json:"annual_rollups,omitempty"`
	Summary        *projection.FinancialSummary  `json:"summary,omitempty"`
}

type errorResponse struct {
	Error     string                    `json:"error"`
	ErrorKind string                    `json:"error_kind"`
	Date      string                    `json:"date,omitempty"`
	Component string                    `json:"component,omitempty"`
	Run       *projection.ProjectionRun `json:"run,omitempty"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req, err := body.toApplication()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logAudit(r, "projection.run", req.SystemConfigID+"/"+req.ScenarioID, map[string]any{
		"start_date":  body.StartDate,
		"end_date":    body.EndDate,
		"granularity": req.Granularity,
	})
	out, err := h.service.Run(r.Context(), req)
	if err != nil {
		var run *projection.ProjectionRun
		if out != nil {
			run = &out.Run
		}
		h.writeError(w, err, run)
		return
	}
	writeJSON(w, http.StatusCreated, runResponse{
		Run:            out.Run,
		Rows:           out.Rows,
		MonthlyRollups: out.MonthlyRollups,
		AnnualRollups:  out.AnnualRollups,
		Summary:        out.Summary,
	})
}

type batchResult struct {
	Request runRequest                   `json:"request"`
	Run     *projection.ProjectionRun    `json:"run,omitempty"`
	Summary *projection.FinancialSummary `json:"summary,omitempty"`
	Error   *errorResponse               `json:"error,omitempty"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if h.batch == nil {
		http.Error(w, "batch runner not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Requests []runRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(body.Requests) == 0 {
		http.Error(w, "requests are required", http.StatusBadRequest)
		return
	}
	requests := make([]application.RunRequest, 0, len(body.Requests))
	for i, item := range body.Requests {
		req, err := item.toApplication()
		if err != nil {
			http.Error(w, fmt.Sprintf("requests[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
		requests = append(requests, req)
	}

	h.logAudit(r, "projection.batch", "", map[string]any{"requests": len(requests)})
	results := h.batch.RunAll(r.Context(), requests)
	resp := make([]batchResult, len(results))
	for i, res := range results {
		item := batchResult{Request: body.Requests[i]}
		if res.Output != nil {
			run := res.Output.Run
			item.Run = &run
			item.Summary = res.Output.Summary
		}
		if res.Err != nil {
			e := newErrorResponse(res.Err, item.Run)
			e.Run = nil
			item.Error = &e
		}
		resp[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	query, g, err := resultQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.service.ListResults(r.Context(), query, g)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if rows == nil {
		rows = []projection.ProjectionResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"system_config_id": query.SystemConfigID,
		"scenario_id":      query.ScenarioID,
		"granularity":      g,
		"rows":             rows,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	query, g, err := resultQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := mux.Vars(r)["format"]
	report, err := h.service.BuildReport(r.Context(), query, g)
	if errors.Is(err, application.ErrNoResults) {
		http.Error(w, "no stored results", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	data, err := export.Build(format, export.Report{
		SystemConfigID: query.SystemConfigID,
		ScenarioID:     query.ScenarioID,
		Granularity:    g,
		Rows:           report.Rows,
		Summary:        report.Summary,
		GeneratedAt:    h.now(),
	})
	if err != nil {
		h.logger.Printf("projection export failed: config=%s scenario=%s format=%s err=%v", query.SystemConfigID, query.ScenarioID, format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("projection_%s_%s.%s", query.SystemConfigID, query.ScenarioID, format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleCollect(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		http.Error(w, "market collector not configured", http.StatusServiceUnavailable)
		return
	}
	h.logAudit(r, "market.collect", "", nil)
	snapshot, err := h.collector.CollectOnce(r.Context())
	if err != nil {
		h.logger.Printf("manual market collect failed: %v", err)
		http.Error(w, "market collect failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) logAudit(r *http.Request, action, resourceID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	var payload []byte
	if meta != nil {
		payload, _ = json.Marshal(meta)
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        caller.Subject,
		Role:         string(caller.Role),
		Action:       action,
		ResourceType: "projection",
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Printf("audit log failed: action=%s err=%v", action, err)
	}
}

func resultQuery(r *http.Request) (application.ResultQuery, projection.Granularity, error) {
	vars := mux.Vars(r)
	query := application.ResultQuery{SystemConfigID: vars["config"], ScenarioID: vars["scenario"]}
	values := r.URL.Query()
	g, err := projection.ParseGranularity(values.Get("granularity"))
	if err != nil {
		return query, "", err
	}
	if raw := values.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return query, "", errors.New("from must be YYYY-MM-DD")
		}
		query.From = from
	}
	if raw := values.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return query, "", errors.New("to must be YYYY-MM-DD")
		}
		query.To = to
	}
	if !query.To.IsZero() && query.To.Before(query.From) {
		return query, "", errors.New("to must not be before from")
	}
	return query, g, nil
}

func newErrorResponse(err error, run *projection.ProjectionRun) errorResponse {
	resp := errorResponse{Error: err.Error(), ErrorKind: projection.ErrorKind(err), Run: run}
	var step *projection.StepError
	if errors.As(err, &step) {
		resp.Component = step.Component
		if !step.Date.IsZero() {
			resp.Date = step.Date.Format(dateLayout)
		}
	}
	return resp
}

func (h *Handler) writeError(w http.ResponseWriter, err error, run *projection.ProjectionRun) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Printf("projection request failed: %v", err)
	}
	writeJSON(w, status, newErrorResponse(err, run))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, projection.ErrConfigurationNotFound), errors.Is(err, projection.ErrScenarioNotFound):
		return http.StatusNotFound
	case errors.Is(err, projection.ErrInvalidDateRange), errors.Is(err, projection.ErrInvalidGranularity),
		errors.Is(err, projection.ErrScenarioMismatch):
		return http.StatusBadRequest
	case errors.Is(err, projection.ErrInvalidScenario), errors.Is(err, projection.ErrNoEnvironmentalData),
		errors.Is(err, projection.ErrNoMarketData), errors.Is(err, projection.ErrArithmeticDomain),
		errors.Is(err, projection.ErrDataTimeout), errors.Is(err, projection.ErrEquipmentNotFound),
		errors.Is(err, projection.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
