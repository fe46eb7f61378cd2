package handler

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/parisxmas/TenderDesk/internal/auth"
	"github.com/parisxmas/TenderDesk/internal/service"
)

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type TenderHandler struct {
	svc    *service.TenderService
	logger *slog.Logger
}

func NewTenderHandler(svc *service.TenderService, logger *slog.Logger) *TenderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenderHandler{svc: svc, logger: logger}
}

func (h *TenderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var submittedBy string
	if claims := auth.GetUser(r.Context()); claims != nil {
		submittedBy = claims.UserID
	}
	sub, err := h.svc.Submit(r.Context(), r, submittedBy)
	if err != nil {
		h.logger.Warn("tender submission rejected", "user", submittedBy, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *TenderHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}

	tenders, total, err := h.svc.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenders": tenders,
		"total":   total,
		"skip":    skip,
		"limit":   limit,
	})
}

func (h *TenderHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenderId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	normalized := json.RawMessage(t.Data)
	if len(normalized) == 0 {
		normalized = json.RawMessage("{}")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tender":     t,
		"normalized": normalized,
	})
}

func (h *TenderHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, f, err := h.svc.OpenDocument(r.Context(), chi.URLParam(r, "tenderId"), chi.URLParam(r, "docId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName}))
	if doc.ContentHash != nil {
		w.Header().Set("ETag", strconv.Quote(*doc.ContentHash))
	}
	http.ServeContent(w, r, doc.StoredName, doc.CreatedAt, f)
}

func (h *TenderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenderId")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *TenderHandler) ByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !sha256Hex.MatchString(hash) {
		writeError(w, http.StatusBadRequest, "hash must be 64 lower-case hex characters")
		return
	}
	docs, err := h.svc.FindByHash(r.Context(), hash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": hash, "documents": docs})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
