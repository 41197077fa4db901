package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenline/call-qa/internal/jobs"
	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/store"
)

// ResultFetcher resolves the final evaluation artifact for a file id.
type ResultFetcher interface {
	GetResult(ctx context.Context, fileID string) ([]byte, error)
}

// Handlers carries the read-side dependencies of the API.
type Handlers struct {
	registry jobs.Registry
	results  ResultFetcher
	profiles store.ProfileStore
	records  store.RecordStore
}

// NewHandlers wires the handler set.
func NewHandlers(registry jobs.Registry, results ResultFetcher, profiles store.ProfileStore, records store.RecordStore) *Handlers {
	return &Handlers{registry: registry, results: results, profiles: profiles, records: records}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Identifiers arriving on the status endpoint: job ids and file names are
// key-derived, execution refs are UUIDs.
var identRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,512}$`)

// statusResponse is the closed contract of the status gateway.
type statusResponse struct {
	Status       string `json:"status"`
	StartDate    string `json:"startDate,omitempty"`
	StopDate     string `json:"stopDate,omitempty"`
	IsComplete   bool   `json:"isComplete"`
	IsSuccessful bool   `json:"isSuccessful"`
	Error        string `json:"error,omitempty"`
}

// GetStatus looks up a job by id, execution ref, or (legacy, best-effort)
// bare file name, and reports its client-facing status. A missing
// execution is a 404 with status NOT_FOUND, never a server error.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileID := q.Get("fileId")
	fileName := q.Get("fileName")
	executionRef := q.Get("executionArn")

	for _, ident := range []string{fileID, fileName, executionRef} {
		if ident != "" && !identRegex.MatchString(ident) {
			respondError(w, apperr.New(apperr.Validation, "malformed identifier"))
			return
		}
	}

	var job *jobs.Job
	var err error
	switch {
	case fileID != "":
		job, err = h.registry.Get(r.Context(), fileID)
		if err != nil && apperr.Is(err, apperr.NotFound) {
			// fileId callers often pass the bare file id rather than the
			// full job identity; fall through to the substring match.
			job, err = h.registry.FindByFileName(r.Context(), fileID)
		}
	case executionRef != "":
		job, err = h.registry.GetByExecutionRef(r.Context(), executionRef)
	case fileName != "":
		job, err = h.registry.FindByFileName(r.Context(), fileName)
	default:
		respondError(w, apperr.New(apperr.Validation, "one of fileId, fileName, executionArn is required"))
		return
	}

	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			respondJSON(w, http.StatusNotFound, statusResponse{Status: "NOT_FOUND"})
			return
		}
		respondError(w, err)
		return
	}

	resp := statusResponse{
		Status:       job.State.Status(),
		StartDate:    job.StartedAt.Format(time.RFC3339),
		IsComplete:   job.IsComplete(),
		IsSuccessful: job.IsSuccessful(),
		Error:        job.Error,
	}
	if job.StoppedAt != nil {
		resp.StopDate = job.StoppedAt.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetResult returns the stored evaluation artifact for a file id, probing
// the candidate locations in order.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	if !identRegex.MatchString(fileID) {
		respondError(w, apperr.New(apperr.Validation, "malformed file id"))
		return
	}

	data, err := h.results.GetResult(r.Context(), fileID)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

var (
	counselorIDRegex   = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
	counselorNameRegex = regexp.MustCompile(`^[A-Za-z .'-]{1,128}$`)
)

// counselorRequest is the POST/PUT body for profile management.
type counselorRequest struct {
	ID       string   `json:"counselorId"`
	Name     string   `json:"counselorName"`
	Programs []string `json:"programs"`
	Active   *bool    `json:"active"`
}

func (cr *counselorRequest) validate() error {
	if !counselorIDRegex.MatchString(cr.ID) {
		return apperr.New(apperr.Validation, "counselorId must match %s", counselorIDRegex.String())
	}
	if !counselorNameRegex.MatchString(cr.Name) {
		return apperr.New(apperr.Validation, "counselorName must match %s", counselorNameRegex.String())
	}
	for _, p := range cr.Programs {
		if len(p) == 0 || len(p) > 64 {
			return apperr.New(apperr.Validation, "program names must be 1-64 characters")
		}
	}
	return nil
}

// ListCounselors returns all profiles.
func (h *Handlers) ListCounselors(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profiles)
}

// GetCounselor returns one profile.
func (h *Handlers) GetCounselor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "counselorId")
	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// CreateCounselor stores a new profile; duplicates are a 409.
func (h *Handlers) CreateCounselor(w http.ResponseWriter, r *http.Request) {
	var req counselorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.New(apperr.Validation, "invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p := store.CounselorProfile{
		ID:       req.ID,
		Name:     req.Name,
		Programs: req.Programs,
		Active:   active,
	}
	if err := h.profiles.Create(r.Context(), p); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// UpdateCounselor rewrites mutable fields; missing targets are a 404.
func (h *Handlers) UpdateCounselor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "counselorId")

	var req counselorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.New(apperr.Validation, "invalid JSON body"))
		return
	}
	req.ID = id
	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p := store.CounselorProfile{
		ID:       id,
		Name:     req.Name,
		Programs: req.Programs,
		Active:   active,
	}
	if err := h.profiles.Update(r.Context(), p); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListCounselorEvaluations returns the evaluation records for one counselor.
func (h *Handlers) ListCounselorEvaluations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "counselorId")
	if !counselorIDRegex.MatchString(id) {
		respondError(w, apperr.New(apperr.Validation, "malformed counselor id"))
		return
	}

	records, err := h.records.ListByCounselor(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if records == nil {
		records = []store.EvaluationRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
