package event

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/funnelworks/campaign-logger/internal/geo"
	"go.uber.org/zap"
)

// Handler is the HTTP boundary: CORS-enabled logging and retrieval
// endpoints plus a liveness probe.
type Handler struct {
	service      *Service
	resolver     *geo.Resolver
	logger       *zap.Logger
	maxBodyBytes int64
}

func NewHandler(service *Service, resolver *geo.Resolver, logger *zap.Logger, maxBodyBytes int64) *Handler {
	return &Handler{
		service:      service,
		resolver:     resolver,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register mounts all routes. When staticDir is set the marketing pages
// are served from it at the root.
func (h *Handler) Register(mux *http.ServeMux, staticDir string) {
	mux.Handle("/api/log", h.cors("GET,OPTIONS,PATCH,DELETE,POST,PUT", http.HandlerFunc(h.handleLog)))
	mux.Handle("/api/logs", h.cors("GET,OPTIONS", http.HandlerFunc(h.handleLogs)))
	mux.HandleFunc("/health", h.handleHealth)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type logsResponse struct {
	OK    bool            `json:"ok"`
	Count int             `json:"count"`
	Logs  []*StoredRecord `json:"logs"`
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	// The write path never rejects for payload quality: a body that does
	// not decode is logged as an empty payload.
	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Debug("Accepting undecodable payload", zap.Error(err))
		payload = Payload{}
	}

	client := h.resolver.Resolve(r)
	meta := RequestMeta{
		IP:        client.IP,
		Country:   client.Country,
		City:      client.City,
		UserAgent: headerPtr(r, "User-Agent"),
		Referer:   headerPtr(r, "Referer"),
	}

	if _, _, err := h.service.Log(r.Context(), payload, meta); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	page := r.URL.Query().Get("page")

	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	records, err := h.service.List(r.Context(), page, limit)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if records == nil {
		records = []*StoredRecord{}
	}
	h.writeJSON(w, http.StatusOK, logsResponse{OK: true, Count: len(records), Logs: records})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// cors answers preflights and marks every response permissive, matching
// the deployed site's cross-origin posture. methods is the per-route
// allow list.
func (h *Handler) cors(methods string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers",
			"X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func headerPtr(r *http.Request, name string) *string {
	if v := r.Header.Get(name); v != "" {
		return &v
	}
	return nil
}
