package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"halcyon-hq/switchboard/pkg/audit"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/turn"
)

// maxTurnBodyBytes caps a turn request body. Transcribed utterances are
// short; anything near this size is not speech.
const maxTurnBodyBytes = 64 << 10

// TurnHandler serves POST /v1/turns: one caller turn in, one decision out.
type TurnHandler struct {
	orch   *turn.Orchestrator
	logger *logging.Logger
}

// NewTurnHandler builds the turn endpoint handler.
func NewTurnHandler(orch *turn.Orchestrator, logger *logging.Logger) *TurnHandler {
	return &TurnHandler{orch: orch, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed,
			newInvalidRequestError("Use POST.", "", codeMethodNotAllowed))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodyBytes)
	var req turn.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				newInvalidRequestError("Request body too large.", "", codeRequestTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest,
			newInvalidRequestError("Request body is not valid JSON.", "", codeInvalidJSON))
		return
	}

	// An authenticated key pins the tenant: it fills a missing tenant_id
	// and rejects a mismatched one.
	if tenant, ok := AuthTenant(r.Context()); ok {
		switch req.TenantID {
		case "":
			req.TenantID = tenant
		case tenant:
		default:
			writeError(w, http.StatusForbidden,
				newPermissionDeniedError("API key is not valid for this tenant."))
			return
		}
	}

	if req.CallID == "" {
		writeError(w, http.StatusBadRequest,
			newInvalidRequestError("call_id is required.", "call_id", codeMissingField))
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest,
			newInvalidRequestError("tenant_id is required.", "tenant_id", codeMissingField))
		return
	}

	ctx := logging.WithCallID(r.Context(), req.CallID)
	ctx = logging.WithTenantID(ctx, req.TenantID)

	tc, err := h.orch.RunTurn(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "turn rejected", "error", err)
		writeError(w, http.StatusBadRequest,
			newInvalidRequestError(err.Error(), "", codeInvalidValue))
		return
	}

	writeJSON(w, http.StatusOK, newTurnResponse(tc))
}

// AuditTrailHandler serves GET /v1/calls/{call_id}/audit: the stored
// decision records for one call, in turn order. An authenticated key only
// sees its own tenant's calls.
type AuditTrailHandler struct {
	storage audit.Storage
	logger  *logging.Logger
}

// NewAuditTrailHandler builds the audit trail endpoint handler.
func NewAuditTrailHandler(storage audit.Storage, logger *logging.Logger) *AuditTrailHandler {
	return &AuditTrailHandler{storage: storage, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *AuditTrailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed,
			newInvalidRequestError("Use GET.", "", codeMethodNotAllowed))
		return
	}

	callID, ok := auditTrailCallID(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, newNotFoundError("No such resource."))
		return
	}

	q := audit.Query{CallID: callID, Limit: audit.MaxQueryLimit}
	if tenant, ok := AuthTenant(r.Context()); ok {
		q.TenantID = tenant
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest,
				newInvalidRequestError("limit must be a positive integer.", "limit", codeInvalidValue))
			return
		}
		q.Limit = n
	}

	records, err := h.storage.Query(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit trail query failed",
			"call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError,
			newServerError("Could not load the audit trail."))
		return
	}

	// Storage returns newest first; a call trail reads in turn order.
	slices.Reverse(records)

	writeJSON(w, http.StatusOK, AuditTrailResponse{CallID: callID, Records: records})
}

// auditTrailCallID extracts the call ID from /v1/calls/{call_id}/audit.
func auditTrailCallID(path string) (string, bool) {
	rest, found := strings.CutPrefix(path, "/v1/calls/")
	if !found {
		return "", false
	}
	callID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "audit" || callID == "" {
		return "", false
	}
	return callID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp *ErrorResponse) {
	writeJSON(w, status, resp)
}
