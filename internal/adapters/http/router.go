package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

const (
	defaultMaxInFlight = 64
	defaultQueueWait   = 250 * time.Millisecond
	// multipart framing on top of the file itself
	multipartOverhead = 1 << 20
	maxJSONBody       = 4 << 10
)

// UploadRecorder observes accepted and rejected uploads.
type UploadRecorder interface {
	RecordUpload(service string, size int64, err error)
}

type Router struct {
	cfg      config.Config
	ingestUC ports.DocumentIngestor
	reader   ports.DocumentReader
	library  ports.DocumentLibrary
	metrics  http.Handler
	uploads  UploadRecorder
	logger   *slog.Logger
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		rt.logger = logger
	}
}

// WithMetrics exposes handler on /metrics and reports uploads to recorder.
func WithMetrics(handler http.Handler, recorder UploadRecorder) RouterOption {
	return func(rt *Router) {
		rt.metrics = handler
		rt.uploads = recorder
	}
}

func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	reader ports.DocumentReader,
	library ports.DocumentLibrary,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:      cfg,
		ingestUC: ingestUC,
		reader:   reader,
		library:  library,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("GET /v1/documents/{id}/summary", rt.getSummary)
	mux.HandleFunc("POST /v1/documents/{id}/summary/resend", rt.resendSummary)
	mux.HandleFunc("GET /v1/summaries", rt.listSummaries)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, defaultMaxInFlight, defaultQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxFileSize := rt.cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxFileSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rt.recordUpload(0, err)
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds maximum upload size")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form is required")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}

	doc, err := rt.ingestUC.Upload(r.Context(), domain.Upload{
		Filename:     fileHeader.Filename,
		MimeType:     mimeType,
		Size:         fileHeader.Size,
		NotifyTarget: strings.TrimSpace(r.FormValue("email")),
	}, file)
	rt.recordUpload(fileHeader.Size, err)
	if err != nil {
		rt.writeDomainError(w, r, "upload_failed", err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_document_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getSummary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_summary_failed", err)
		return
	}
	if doc.Status != domain.StatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "summary is not ready",
			"status": string(doc.Status),
		})
		return
	}

	summary, err := rt.reader.GetSummaryByDocumentID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_summary_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		DocumentID:            summary.DocumentID,
		Filename:              doc.Filename,
		PageCount:             doc.PageCount,
		Content:               summary.Content,
		WordCount:             summary.WordCount,
		ProcessingTimeSeconds: summary.ProcessingTime.Seconds(),
		EmailSent:             summary.EmailSent,
		CreatedAt:             summary.CreatedAt,
	})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := rt.library.ListDocuments(r.Context(), page)
	if err != nil {
		rt.writeDomainError(w, r, "list_documents_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) listSummaries(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := rt.library.ListSummaries(r.Context(), page)
	if err != nil {
		rt.writeDomainError(w, r, "list_summaries_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if err := rt.library.DeleteDocument(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, "delete_document_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resendRequest struct {
	Email string `json:"email"`
}

func (rt *Router) resendSummary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	var req resendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "json body with 'email' is required")
		return
	}
	if err := rt.library.ResendSummary(r.Context(), id, req.Email); err != nil {
		rt.writeDomainError(w, r, "resend_summary_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email sent"})
}

func parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	query := r.URL.Query()
	for _, field := range []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}} {
		raw := strings.TrimSpace(query.Get(field.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return domain.Page{}, errors.New(field.name + " must be a non-negative integer")
		}
		*field.dst = value
	}
	return page.Normalize(), nil
}

type summaryResponse struct {
	DocumentID            string    `json:"document_id"`
	Filename              string    `json:"filename"`
	PageCount             *int      `json:"page_count,omitempty"`
	Content               string    `json:"content"`
	WordCount             int       `json:"word_count"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	EmailSent             bool      `json:"email_sent"`
	CreatedAt             time.Time `json:"created_at"`
}

func (rt *Router) recordUpload(size int64, err error) {
	if rt.uploads != nil {
		rt.uploads.RecordUpload("api", size, err)
	}
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error(event, "request_id", requestIDFromContext(r.Context()), "error", err.Error())
	}
	writeError(w, status, publicErrorMessage(status, err))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
