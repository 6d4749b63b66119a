package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/savegress/recordvault/internal/audit"
	"github.com/savegress/recordvault/internal/extraction"
	"github.com/savegress/recordvault/internal/grants"
	"github.com/savegress/recordvault/internal/reports"
	"github.com/savegress/recordvault/internal/viewer"
)

// Extractor is the external document-understanding dependency.
type Extractor interface {
	Extract(ctx context.Context, documentURI, mimeType string) (*extraction.RawReport, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	extractor  Extractor
	normalizer *extraction.Normalizer
	reports    reports.Store
	grants     *grants.Registry
	reader     *viewer.Reader
	audit      *audit.Logger
}

// NewHandlers creates new handlers
func NewHandlers(extractor Extractor, normalizer *extraction.Normalizer, reportStore reports.Store, registry *grants.Registry, reader *viewer.Reader, auditLog *audit.Logger) *Handlers {
	return &Handlers{
		extractor:  extractor,
		normalizer: normalizer,
		reports:    reportStore,
		grants:     registry,
		reader:     reader,
		audit:      auditLog,
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "recordvault",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// IngestReport accepts an uploaded document reference, runs extraction, and
// stores the normalized report. A pre-extracted payload may be supplied
// inline instead of a document reference.
func (h *Handlers) IngestReport(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())

	var req struct {
		DocumentURI string                `json:"document_uri"`
		MimeType    string                `json:"mime_type"`
		Raw         *extraction.RawReport `json:"raw"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	raw := req.Raw
	if raw == nil {
		if req.DocumentURI == "" {
			respondError(w, http.StatusBadRequest, "Either document_uri or raw payload is required")
			return
		}
		var err error
		raw, err = h.extractor.Extract(r.Context(), req.DocumentURI, req.MimeType)
		if err != nil {
			// Upstream failures propagate verbatim; the caller owns retries.
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	report := h.normalizer.Normalize(ownerID, raw)
	if err := h.reports.Put(r.Context(), report); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.audit.RecordIngest(ownerID, report.ID, r.RemoteAddr)
	respond(w, http.StatusCreated, report)
}

// ListReports returns the owner's reports in timeline order
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())

	results, err := h.reports.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, results)
}

// IssueGrant issues an access grant scoped to a set of report ids
func (h *Handlers) IssueGrant(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())

	var req struct {
		ReportIDs  []string `json:"report_ids"`
		TTLSeconds int64    `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, err := h.grants.Issue(r.Context(), ownerID, req.ReportIDs, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.audit.RecordGrantIssued(ownerID, grant.ID, len(grant.Scope), r.RemoteAddr)
	respond(w, http.StatusCreated, grant)
}

// ListGrants returns the owner's active grants, newest first
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())

	results, err := h.grants.ListActive(r.Context(), ownerID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, results)
}

// RevokeGrant revokes a grant, idempotently
func (h *Handlers) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())
	grantID := chi.URLParam(r, "id")

	if err := h.grants.Revoke(r.Context(), ownerID, grantID); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.audit.RecordGrantRevoked(ownerID, grantID, r.RemoteAddr)
	respond(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ReadTimeline is the viewer entry point: the token in the path is the only
// credential. Invalid, revoked, and expired tokens all produce the same
// response.
func (h *Handlers) ReadTimeline(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	results, err := h.reader.ReadTimeline(r.Context(), token)
	if err != nil {
		if errors.Is(err, grants.ErrInvalidToken) || errors.Is(err, viewer.ErrGrantExpiredOrRevoked) {
			// A dead-grant denial is attributed to the grant's owner so it
			// shows up in their audit history; the viewer response stays the
			// same either way.
			ownerID, grantID := "", ""
			var denied *viewer.DeniedError
			if errors.As(err, &denied) {
				ownerID, grantID = denied.OwnerID, denied.GrantID
			}
			h.audit.RecordTimelineRead(ownerID, grantID, 0, audit.OutcomeDenied, deniedDetail(err), r.RemoteAddr)
			respondError(w, http.StatusForbidden, "Access denied")
			return
		}
		h.respondDomainError(w, err)
		return
	}

	ownerID := ""
	if len(results) > 0 {
		ownerID = results[0].OwnerID
	}
	h.audit.RecordTimelineRead(ownerID, "", len(results), audit.OutcomeSuccess, "", r.RemoteAddr)
	respond(w, http.StatusOK, results)
}

// GetStats returns overall service statistics
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	reportCount, err := h.reports.Count(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"reports": reportCount,
		"audit":   h.audit.GetStats(),
	})
}

// ListAuditEvents returns the owner's audit history
func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerID(r.Context())

	events := h.audit.GetEvents(audit.EventFilter{
		OwnerID: ownerID,
		Type:    r.URL.Query().Get("type"),
		Outcome: r.URL.Query().Get("outcome"),
	})
	if events == nil {
		events = []*audit.Event{}
	}
	respond(w, http.StatusOK, events)
}

// respondDomainError maps domain errors onto HTTP status codes.
func (h *Handlers) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grants.ErrInvalidScope):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, grants.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, grants.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reports.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}

// deniedDetail records the real cause internally even though the viewer
// response is opaque.
func deniedDetail(err error) string {
	if errors.Is(err, grants.ErrInvalidToken) {
		return "invalid token"
	}
	return "expired or revoked"
}

// Helper functions

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}
