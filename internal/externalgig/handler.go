package externalgig

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/model"
)

const maxBodyBytes = 1 << 20

// response is the JSON envelope of every gateway reply.
type response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Count   *int     `json:"count,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Handler exposes Service over HTTP.
//
// Routes (all behind the API key):
//
//	POST   /external-gigs                        → create or update one gig
//	GET    /external-gigs?source=&limit=         → list, newest first
//	GET    /external-gigs/stats                  → population counters
//	DELETE /external-gigs/{source}/{externalId}  → delete one gig (no-op if absent)
type Handler struct {
	svc  *Service
	auth *Authenticator
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service, auth *Authenticator) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// RegisterRoutes mounts the gateway routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/external-gigs").Subrouter()
	api.Use(h.auth.Middleware)

	api.HandleFunc("", h.upsert).Methods(http.MethodPost)
	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/{source}/{externalId}", h.delete).Methods(http.MethodDelete)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Upsert(r.Context(), &req)
	if err != nil {
		h.serviceError(w, "upsert", err)
		return
	}

	if res.Outcome == ingest.OutcomeInserted {
		jsonWrite(w, http.StatusCreated, response{Success: true, Message: "External gig created successfully", Data: res.Gig})
		return
	}
	jsonWrite(w, http.StatusOK, response{Success: true, Message: "External gig updated successfully", Data: res.Gig})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	deleted, err := h.svc.Delete(r.Context(), vars["source"], vars["externalId"])
	if err != nil {
		h.serviceError(w, "delete", err)
		return
	}

	msg := "External gig deleted successfully"
	if !deleted {
		msg = "External gig not found, nothing to delete"
	}
	jsonWrite(w, http.StatusOK, response{Success: true, Message: msg, Data: map[string]bool{"deleted": deleted}})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := model.ListFilter{Source: r.URL.Query().Get("source")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	gigs, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.serviceError(w, "list", err)
		return
	}

	count := len(gigs)
	jsonWrite(w, http.StatusOK, response{Success: true, Data: gigs, Count: &count})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.serviceError(w, "stats", err)
		return
	}
	jsonWrite(w, http.StatusOK, response{Success: true, Data: st})
}

// serviceError maps validation failures to 400 and hides everything else
// behind a generic 500.
func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	var ve *ingest.ValidationError
	if errors.As(err, &ve) {
		jsonWrite(w, http.StatusBadRequest, response{Success: false, Message: "Invalid external gig", Errors: ve.Problems})
		return
	}
	slog.Error("external gig "+op+" failed", "err", err)
	jsonError(w, "Server error", http.StatusInternalServerError)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, response{Success: false, Message: msg})
}
