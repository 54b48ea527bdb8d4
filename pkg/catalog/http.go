package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/opencatalog/platform/pkg/auth"
	"github.com/opencatalog/platform/pkg/common/logger"
	"github.com/opencatalog/platform/pkg/common/models"
	"github.com/opencatalog/platform/pkg/middleware"
)

type Handler struct {
	service *Service
	codec   *CursorCodec
	maxBody int64
}

func NewHandler(service *Service, codec *CursorCodec, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	return &Handler{service: service, codec: codec, maxBody: maxBody}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/datasets", h.handleListDatasets).Methods(http.MethodGet)
	r.HandleFunc("/datasets", h.handleRegisterDataset).Methods(http.MethodPost)
	r.HandleFunc("/datasets/{id}", h.handleGetDataset).Methods(http.MethodGet)
	r.HandleFunc("/datasets/{id}/status", h.handleDatasetStatus).Methods(http.MethodPatch)
	r.HandleFunc("/tasks", h.handleListTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.handleCreateTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/flows", h.handleListFlows).Methods(http.MethodGet)
	r.HandleFunc("/flows", h.handleRegisterFlow).Methods(http.MethodPost)
	r.HandleFunc("/flows/{id}", h.handleGetFlow).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.handleSubmitRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/status", h.handleRunStatus).Methods(http.MethodPatch)
}

// --- datasets ---

func (h *Handler) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r, KindDataset, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	items, next, err := h.service.ListDatasets(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ListPage{Items: items, NextCursor: next})
}

func (h *Handler) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req models.RegisterDatasetRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	dataset, err := h.service.RegisterDataset(r.Context(), req, actorName(principal))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataset)
}

func (h *Handler) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dataset, err := h.service.GetDataset(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *Handler) handleDatasetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.UpdateDatasetStatusRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	dataset, err := h.service.DeactivateDataset(r.Context(), id, req.Status, actorName(principal))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

// --- tasks ---

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r, KindTask, map[string]Kind{"dataset": KindDataset})
	if err != nil {
		writeError(w, err)
		return
	}
	items, next, err := h.service.ListTasks(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ListPage{Items: items, NextCursor: next})
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	var req models.CreateTaskRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expand, err := parseExpand(r, map[string]Kind{"dataset": KindDataset})
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.service.GetTask(r.Context(), id, expand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- flows ---

func (h *Handler) handleListFlows(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r, KindFlow, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	items, next, err := h.service.ListFlows(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ListPage{Items: items, NextCursor: next})
}

func (h *Handler) handleRegisterFlow(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	var req models.RegisterFlowRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	flow, err := h.service.RegisterFlow(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (h *Handler) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	flow, err := h.service.GetFlow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// --- runs ---

var runExpansions = map[string]Kind{"task": KindTask, "flow": KindFlow}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r, KindRun, runExpansions)
	if err != nil {
		writeError(w, err)
		return
	}
	items, next, err := h.service.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ListPage{Items: items, NextCursor: next})
}

func (h *Handler) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req models.SubmitRunRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	run, err := h.service.SubmitRun(r.Context(), req, actorName(principal))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expand, err := parseExpand(r, runExpansions)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), id, expand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.UpdateRunStatusRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	run, err := h.service.UpdateRunStatus(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- request parsing ---

// listOptions assembles validated ListOptions from query parameters.
// Everything is checked before any storage call: unknown fields, bad
// operators, and stale cursors never reach the database.
func (h *Handler) listOptions(r *http.Request, kind Kind, expansions map[string]Kind) (ListOptions, error) {
	query := r.URL.Query()

	clauses, err := parseFilterParams(query["filter"])
	if err != nil {
		return ListOptions{}, err
	}
	preds, err := ParseFilters(kind, clauses)
	if err != nil {
		return ListOptions{}, err
	}

	sort := SortSpec{Field: query.Get("sort"), Descending: false}
	if sort.Field == "" {
		sort.Field = TieBreakField
	}
	switch strings.ToLower(query.Get("order")) {
	case "", "asc":
	case "desc":
		sort.Descending = true
	default:
		return ListOptions{}, &TypeMismatchError{Field: "order", Value: query.Get("order"), Reason: "must be asc or desc"}
	}

	opts := ListOptions{Filters: preds, Sort: sort}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return ListOptions{}, &TypeMismatchError{Field: "limit", Value: raw, Reason: "must be a positive integer"}
		}
		opts.Limit = limit
	}

	if token := query.Get("cursor"); token != "" {
		pos, err := h.codec.Decode(token, kind, sort)
		if err != nil {
			return ListOptions{}, err
		}
		opts.Cursor = &pos
	}

	opts.Expand, err = parseExpand(r, expansions)
	if err != nil {
		return ListOptions{}, err
	}
	return opts, nil
}

// parseFilterParams splits repeated filter=field:op:value parameters into
// raw clauses. The value segment may itself contain colons.
func parseFilterParams(params []string) ([]Clause, error) {
	clauses := make([]Clause, 0, len(params))
	for _, raw := range params {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 {
			return nil, &TypeMismatchError{Field: "filter", Value: raw, Reason: "expected field:operator:value"}
		}
		clause := Clause{Field: parts[0], Operator: parts[1]}
		if len(parts) == 3 {
			clause.Value = parts[2]
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseExpand(r *http.Request, expansions map[string]Kind) (map[Kind]bool, error) {
	raw := r.URL.Query().Get("expand")
	if raw == "" {
		return nil, nil
	}
	expand := make(map[Kind]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, ok := expansions[name]
		if !ok {
			return nil, &TypeMismatchError{Field: "expand", Value: name, Reason: "unsupported expansion"}
		}
		expand[kind] = true
	}
	return expand, nil
}

// readJSON decodes a write-request body, bounding how many bytes will be
// read before decoding starts.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorPayload{Error: models.ErrorBody{
				Code:    "body_too_large",
				Message: "request body exceeds the configured limit",
			}})
			return false
		}
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeBadRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal := middleware.PrincipalFrom(r.Context())
	if principal == nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "unauthorized",
			Message: "authentication required",
		}})
		return nil, false
	}
	return principal, true
}

func actorName(p *auth.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID.String()
}

// --- responses ---

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
		Code:    "bad_request",
		Message: message,
	}})
}

// writeError maps the error taxonomy onto HTTP statuses. Integrity
// violations are logged loudly and never downgraded; anything unrecognized
// is treated as a transient storage failure and marked retryable.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation  *ValidationError
		unknown     *UnknownFieldError
		badOperator *UnsupportedOperatorError
		mismatch    *TypeMismatchError
		cursor      *CursorMismatchError
		consistency *ConsistencyError
		integrity   *IntegrityViolationError
		notFound    *NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
			Code:       "validation_error",
			Message:    "request failed validation",
			Violations: validation.Violations,
		}})
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
			Code:       "unknown_field",
			Message:    unknown.Error(),
			Violations: []models.Violation{{Field: unknown.Field, Reason: "unknown field"}},
		}})
	case errors.As(err, &badOperator):
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "unsupported_operator",
			Message: badOperator.Error(),
		}})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "type_mismatch",
			Message: mismatch.Error(),
		}})
	case errors.As(err, &cursor):
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "cursor_mismatch",
			Message: cursor.Error(),
		}})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "not_found",
			Message: notFound.Error(),
		}})
	case errors.As(err, &consistency):
		writeJSON(w, http.StatusConflict, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "consistency_error",
			Message: consistency.Error(),
		}})
	case errors.As(err, &integrity):
		logger.Log.WithError(err).Error("storage integrity violation")
		writeJSON(w, http.StatusInternalServerError, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "integrity_violation",
			Message: integrity.Error(),
		}})
	default:
		logger.Log.WithError(err).Error("storage failure")
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorPayload{Error: models.ErrorBody{
			Code:    "storage_unavailable",
			Message: "temporary storage failure, retry later",
		}})
	}
}
