package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"content-batch/internal/importer"
	"content-batch/internal/metrics"
	"content-batch/internal/models"
	"content-batch/internal/service"
)

const maxImportBytes = 5 << 20

// JobHandler exposes the batch controller over HTTP
type JobHandler struct {
	controller *service.Controller
	metrics    *metrics.Metrics
	defaults   models.Settings
	log        logrus.FieldLogger
}

// NewJobHandler creates a new job handler. defaults fill settings the client leaves empty.
func NewJobHandler(controller *service.Controller, metrics *metrics.Metrics, defaults models.Settings, log logrus.FieldLogger) *JobHandler {
	return &JobHandler{
		controller: controller,
		metrics:    metrics,
		defaults:   defaults,
		log:        log.WithField("component", "http"),
	}
}

// NewRouter builds the HTTP router with routes bound to the handler
func NewRouter(h *JobHandler) http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/job", h.CreateJob).Methods(http.MethodPost)
	r.HandleFunc("/job", h.GetJob).Methods(http.MethodGet)
	r.HandleFunc("/job", h.ResetJob).Methods(http.MethodDelete)
	r.HandleFunc("/job/import", h.ImportJob).Methods(http.MethodPost)
	r.HandleFunc("/job/progress", h.GetProgress).Methods(http.MethodGet)
	r.HandleFunc("/job/start", h.StartJob).Methods(http.MethodPost)
	r.HandleFunc("/job/pause", h.PauseJob).Methods(http.MethodPost)
	r.HandleFunc("/job/resume", h.ResumeJob).Methods(http.MethodPost)
	r.HandleFunc("/job/stop", h.StopJob).Methods(http.MethodPost)
	r.HandleFunc("/job/items", h.AddItem).Methods(http.MethodPost)
	r.HandleFunc("/job/items/{id}", h.RemoveItem).Methods(http.MethodDelete)
	r.HandleFunc("/job/settings", h.UpdateSettings).Methods(http.MethodPut)
	r.HandleFunc("/job/export/records", h.ExportRecords).Methods(http.MethodGet)
	r.HandleFunc("/job/export/bundle", h.ExportBundle).Methods(http.MethodGet)
	r.HandleFunc("/job/export/csv", h.ExportCSV).Methods(http.MethodGet)
	r.HandleFunc("/estimate", h.Estimate).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.GetMetrics).Methods(http.MethodGet)
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// CreateJob handles POST /job
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.controller.CreateJob(r.Context(), req.Items, h.defaults.Merge(&req.Settings))
	if err != nil {
		h.writeError(w, "create job", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

// ImportJob handles POST /job/import with a CSV body; settings come from the query string
func (h *JobHandler) ImportJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "failed to read request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	inputs, err := importer.Parse(string(body))
	if err != nil {
		h.writeError(w, "import job", err)
		return
	}

	override, err := settingsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.controller.CreateJob(r.Context(), inputs, h.defaults.Merge(&override))
	if err != nil {
		h.writeError(w, "import job", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /job
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job := h.controller.GetJob()
	if job == nil {
		http.Error(w, "no job", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ProgressResponse is the body of GET /job/progress
type ProgressResponse struct {
	Status   models.JobStatus `json:"status"`
	Percent  int              `json:"percent"`
	Progress models.Progress  `json:"progress"`
	Cost     models.Cost      `json:"cost"`
}

// GetProgress handles GET /job/progress
func (h *JobHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	job := h.controller.GetJob()
	if job == nil {
		http.Error(w, "no job", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, ProgressResponse{
		Status:   job.Status,
		Percent:  h.controller.GetProgressPercent(),
		Progress: job.Progress,
		Cost:     job.Cost,
	})
}

// StartJob handles POST /job/start
func (h *JobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Start(r.Context()); err != nil {
		h.writeError(w, "start job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.controller.GetJob())
}

// ResumeJob handles POST /job/resume
func (h *JobHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Resume(r.Context()); err != nil {
		h.writeError(w, "resume job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.controller.GetJob())
}

// PauseJob handles POST /job/pause. The run halts after the current item.
func (h *JobHandler) PauseJob(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Pause(); err != nil {
		h.writeError(w, "pause job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.controller.GetJob())
}

// StopJob handles POST /job/stop
func (h *JobHandler) StopJob(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(r.Context()); err != nil {
		h.writeError(w, "stop job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.controller.GetJob())
}

// ResetJob handles DELETE /job
func (h *JobHandler) ResetJob(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Reset(r.Context()); err != nil {
		h.writeError(w, "reset job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /job/items
func (h *JobHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req models.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.controller.AddItem(r.Context(), req.Input, req.Settings)
	if err != nil {
		h.writeError(w, "add item", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

// RemoveItem handles DELETE /job/items/{id}
func (h *JobHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.controller.RemoveItem(r.Context(), id); err != nil {
		h.writeError(w, "remove item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PUT /job/settings
func (h *JobHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.controller.UpdateGlobalSettings(r.Context(), h.defaults.Merge(&settings)); err != nil {
		h.writeError(w, "update settings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.GetJob())
}

// ExportRecords handles GET /job/export/records
func (h *JobHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	data, err := h.controller.ExportAsStructuredRecords()
	if err != nil {
		h.writeError(w, "export records", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-records.json"`)
	w.Write(data)
}

// ExportBundle handles GET /job/export/bundle
func (h *JobHandler) ExportBundle(w http.ResponseWriter, r *http.Request) {
	data, err := h.controller.ExportAsDocumentBundle()
	if err != nil {
		h.writeError(w, "export bundle", err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-documents.zip"`)
	w.Write(data)
}

// ExportCSV handles GET /job/export/csv, returning the item inputs in import format
func (h *JobHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	job := h.controller.GetJob()
	if job == nil {
		http.Error(w, "no job", http.StatusNotFound)
		return
	}
	inputs := make([]models.ItemInput, len(job.Items))
	for i, it := range job.Items {
		inputs[i] = it.Input
	}
	text, err := importer.Serialize(inputs)
	if err != nil {
		h.writeError(w, "export csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-items.csv"`)
	w.Write([]byte(text))
}

// EstimateResponse is the body of GET /estimate
type EstimateResponse struct {
	Count       int     `json:"count"`
	Model       string  `json:"model"`
	Length      string  `json:"length"`
	PerItemCost float64 `json:"perItemCost"`
	Cost        float64 `json:"cost"`
	Minutes     int     `json:"minutes"`
}

// Estimate handles GET /estimate?count=&model=&length=
func (h *JobHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < 0 {
		http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
		return
	}
	override, err := settingsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	settings := h.defaults.Merge(&override)

	est := h.controller.Estimator()
	h.writeJSON(w, http.StatusOK, EstimateResponse{
		Count:       count,
		Model:       settings.Model,
		Length:      settings.Length,
		PerItemCost: est.PerItemCost(settings),
		Cost:        est.EstimateCost(count, settings),
		Minutes:     est.EstimateMinutes(count),
	})
}

// MetricsResponse is the body of GET /metrics
type MetricsResponse struct {
	Counters   map[string]int64 `json:"counters"`
	ActualCost float64          `json:"actualCost"`
}

// GetMetrics handles GET /metrics
func (h *JobHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, MetricsResponse{
		Counters:   h.metrics.GetSnapshot(),
		ActualCost: h.metrics.ActualCost(),
	})
}

func settingsFromQuery(r *http.Request) (models.Settings, error) {
	q := r.URL.Query()
	s := models.Settings{
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
		Style:    q.Get("style"),
		Length:   q.Get("length"),
	}
	if raw := q.Get("temperature"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return s, fmt.Errorf("invalid temperature %q", raw)
		}
		s.Temperature = &t
	}
	return s, nil
}

// statusFor maps controller and importer errors to HTTP status codes
func statusFor(err error) int {
	var verr *service.ValidationError
	var ferr *importer.FormatError
	var serr *service.InvalidStateError

	switch {
	case errors.As(err, &verr), errors.As(err, &ferr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoJob), errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.As(err, &serr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *JobHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("op", op).Error("request failed")
		http.Error(w, op+" failed: "+err.Error(), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *JobHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("error encoding response")
	}
}
