// Package httpapi exposes the manuscript analysis pipeline over HTTP:
// analyze, upload, artifact download, and rendered report endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sciwrite/manuscript-critic/internal/analysis"
	"github.com/sciwrite/manuscript-critic/internal/store"
)

// Analyzer runs the full manuscript pipeline. *analysis.Pipeline satisfies
// it; tests substitute a stub.
type Analyzer interface {
	Analyze(ctx context.Context, rawText string) (analysis.AnalysisResult, error)
}

type Server struct {
	analyzer Analyzer
	store    *store.Store
	ledger   *store.Ledger
	pdf      *PDFRenderer

	baseURL        string
	maxUploadBytes int64
	maxChars       int
	artifactTTL    time.Duration
	now            func() time.Time
}

type Options struct {
	BaseURL        string
	MaxUploadBytes int64
	MaxChars       int
	ArtifactTTL    time.Duration
}

func NewServer(analyzer Analyzer, st *store.Store, ledger *store.Ledger, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 15 << 20
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = analysis.MaxManuscriptChars
	}
	if opts.ArtifactTTL <= 0 {
		opts.ArtifactTTL = time.Hour
	}
	return &Server{
		analyzer:       analyzer,
		store:          st,
		ledger:         ledger,
		pdf:            NewPDFRenderer(),
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		maxUploadBytes: opts.MaxUploadBytes,
		maxChars:       opts.MaxChars,
		artifactTTL:    opts.ArtifactTTL,
		now:            time.Now,
	}
}

// Handler builds the chi router with CORS enabled for browser clients.
// Preflight OPTIONS requests are answered by the cors middleware.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Post("/analyze", s.handleAnalyze)
	mux.Post("/upload", s.handleUpload)
	mux.Get("/download", s.handleDownload)
	mux.Get("/report/{id}", s.handleReportHTML)
	mux.Get("/report-pdf/{id}", s.handleReportPDF)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

type reportLinks struct {
	Markdown string `json:"markdown"`
	JSON     string `json:"json"`
	HTML     string `json:"html"`
	PDF      string `json:"pdf,omitempty"`
}

type analyzeResponse struct {
	analysis.AnalysisResult
	SubmissionID string       `json:"submissionId"`
	Report       string       `json:"report"`
	Links        *reportLinks `json:"reportLinks,omitempty"`
}

type uploadResponse struct {
	SubmissionID string `json:"submissionId"`
	Filename     string `json:"filename"`
	Download     string `json:"download"`
}

// handleAnalyze accepts a manuscript (multipart "file" or a "fileText" form
// field), runs the pipeline, persists the artifacts, and returns the typed
// result plus the rendered report. Oracle degradation still produces 200;
// only intake errors and the overall pipeline deadline map to error codes.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	rawText, origName, ok := s.readManuscript(w, r)
	if !ok {
		return
	}
	if len([]rune(rawText)) > s.maxChars {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("manuscript exceeds %d characters", s.maxChars))
		return
	}
	if strings.TrimSpace(rawText) == "" {
		writeError(w, http.StatusBadRequest, "empty manuscript")
		return
	}

	submissionID := uuid.NewString()
	result, err := s.analyzer.Analyze(r.Context(), rawText)
	if err != nil {
		if errors.Is(err, analysis.ErrPipelineTimeout) {
			s.persistArtifacts(submissionID, origName, rawText, result)
			writeError(w, http.StatusGatewayTimeout, "analysis timed out")
			return
		}
		log.Printf("analyze %s: %v", submissionID, err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	markdown, links := s.persistArtifacts(submissionID, origName, rawText, result)

	writeJSON(w, http.StatusOK, analyzeResponse{
		AnalysisResult: result,
		SubmissionID:   submissionID,
		Report:         markdown,
		Links:          links,
	})
}

// persistArtifacts saves the upload, results JSON, and Markdown report and
// records the submission TTL. Storage failures are logged, never fatal: the
// analysis response does not depend on artifact durability.
func (s *Server) persistArtifacts(submissionID, origName, rawText string, result analysis.AnalysisResult) (string, *reportLinks) {
	markdown, resultsJSON := analysis.Render(result)

	saved := true
	if _, err := s.store.Save(store.KindUpload, submissionID, uploadExt(origName), []byte(rawText)); err != nil {
		log.Printf("save upload %s: %v", submissionID, err)
		saved = false
	}
	jsonToken, err := s.store.Save(store.KindResults, submissionID, ".json", resultsJSON)
	if err != nil {
		log.Printf("save results %s: %v", submissionID, err)
		saved = false
	}
	mdToken, err := s.store.Save(store.KindReport, submissionID, ".md", []byte(markdown))
	if err != nil {
		log.Printf("save report %s: %v", submissionID, err)
		saved = false
	}
	if saved {
		now := s.now()
		if err := s.ledger.Record(submissionID, now, now.Add(s.artifactTTL)); err != nil {
			log.Printf("record submission %s: %v", submissionID, err)
			saved = false
		}
	}
	if !saved {
		return markdown, nil
	}

	links := &reportLinks{
		Markdown: s.link("/download?path=" + mdToken),
		JSON:     s.link("/download?path=" + jsonToken),
		HTML:     s.link("/report/" + submissionID),
	}
	if s.pdf.Available() {
		links.PDF = s.link("/report-pdf/" + submissionID)
	}
	return markdown, links
}

// handleUpload stores a manuscript without analyzing it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rawText, origName, ok := s.readManuscript(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(rawText) == "" {
		writeError(w, http.StatusBadRequest, "empty manuscript")
		return
	}

	submissionID := uuid.NewString()
	token, err := s.store.Save(store.KindUpload, submissionID, uploadExt(origName), []byte(rawText))
	if err != nil {
		log.Printf("save upload %s: %v", submissionID, err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	now := s.now()
	if err := s.ledger.Record(submissionID, now, now.Add(s.artifactTTL)); err != nil {
		log.Printf("record submission %s: %v", submissionID, err)
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		SubmissionID: submissionID,
		Filename:     token,
		Download:     s.link("/download?path=" + token),
	})
}

// contentTypes maps stored-artifact extensions to download media types.
var contentTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".tex":  "application/x-tex",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pdf":  "application/pdf",
}

// handleDownload serves a stored artifact by token. The token is validated
// as a bare filename; anything resembling a path is rejected before it
// touches the filesystem.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("path")
	blob, err := s.store.Read(token)
	switch {
	case errors.Is(err, store.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid artifact token")
		return
	case errors.Is(err, store.ErrOutsideRoot):
		writeError(w, http.StatusForbidden, "forbidden")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	case err != nil:
		log.Printf("download %s: %v", token, err)
		writeError(w, http.StatusInternalServerError, "could not read artifact")
		return
	}

	ct := contentTypes[strings.ToLower(extOf(token))]
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", token))
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// handleReportHTML renders a stored Markdown report as a browsable page.
func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	markdown, id, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	page, err := renderReportHTML(markdown, "Manuscript Review "+id)
	if err != nil {
		log.Printf("render report %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not render report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// handleReportPDF prints the stored report to PDF. Returns 503 when no
// browser binary is installed on the host.
func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if !s.pdf.Available() {
		writeError(w, http.StatusServiceUnavailable, "pdf rendering unavailable")
		return
	}
	markdown, id, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	pdf, err := s.pdf.Render(r.Context(), markdown, "Manuscript Review "+id)
	if err != nil {
		log.Printf("render pdf %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+id+".pdf"))
	w.Write(pdf)
}

func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id := chi.URLParam(r, "id")
	token := store.Filename(store.KindReport, id, ".md")
	blob, err := s.store.Read(token)
	switch {
	case errors.Is(err, store.ErrInvalidToken), errors.Is(err, store.ErrOutsideRoot):
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return "", "", false
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return "", "", false
	case err != nil:
		log.Printf("load report %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load report")
		return "", "", false
	}
	return string(blob), id, true
}

// readManuscript pulls the manuscript text from the request: either an
// uploaded "file" part or an inline "fileText" field. Reports intake errors
// itself and returns ok=false.
func (s *Server) readManuscript(w http.ResponseWriter, r *http.Request) (text, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return "", "", false
		}
		writeError(w, http.StatusBadRequest, "expected multipart form data")
		return "", "", false
	}

	if inline := r.FormValue("fileText"); strings.TrimSpace(inline) != "" {
		return sanitizeText(inline), "manuscript.txt", true
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "provide a file upload or fileText field")
		return "", "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return "", "", false
	}

	text, err = extractRawText(header.Filename, data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest,
				"unsupported format: use .docx, .txt, .md, or .tex")
			return "", "", false
		}
		writeError(w, http.StatusBadRequest, "could not extract manuscript text")
		return "", "", false
	}
	return text, header.Filename, true
}

func (s *Server) link(path string) string {
	return s.baseURL + path
}

// uploadExt preserves a text-like original extension for the stored copy;
// binary sources are stored as the extracted text.
func uploadExt(filename string) string {
	switch ext := strings.ToLower(extOf(filename)); ext {
	case ".md", ".tex", ".txt":
		return ext
	default:
		return ".txt"
	}
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
