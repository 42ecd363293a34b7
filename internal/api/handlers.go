package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/invoice"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
)

type errorBody struct {
	Error    string   `json:"error"`
	Category string   `json:"category,omitempty"`
	Code     string   `json:"code,omitempty"`
	Details  []string `json:"details,omitempty"`
}

type createResponse struct {
	Invoice    *gst.Invoice         `json:"invoice"`
	Extraction *document.Extraction `json:"extraction,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
	PDFURL     string               `json:"pdf_url,omitempty"`
	XMLURL     string               `json:"xml_url,omitempty"`
	Metadata   pipeline.Metadata    `json:"metadata"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

// statusFor maps a failed run to an HTTP status
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindExtractionUnrecognizable, apperr.KindExtractionSchema, apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindExtractionService, apperr.KindGeneration:
		return http.StatusBadGateway
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func runErrorBody(err error) errorBody {
	body := errorBody{Error: apperr.UserMessage(err)}
	if e, ok := apperr.As(err); ok {
		body.Category = string(e.Kind)
		body.Code = e.Code
		body.Details = e.Details
	}
	return body
}

// contentTypeFor resolves the upload's content type, falling back to the file extension
func contentTypeFor(header string, filename string) string {
	if ct := strings.ToLower(strings.TrimSpace(header)); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// handleCreateInvoice runs the pipeline on an uploaded photo
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("File is too large. Maximum size is %dMB.", s.maxUpload>>20)
		}
		writeError(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "No file was selected. Please choose a photo of the bill."})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Error reading file. Please try again."})
		return
	}

	result := s.runner.Run(r.Context(), pipeline.Request{
		Image:         data,
		ContentType:   contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
		Kind:          document.Kind(r.FormValue("document_type")),
		CustomerState: r.FormValue("customer_state"),
		Options:       pipeline.Options{Source: "api"},
	})
	if !result.Success {
		slog.Error("Error processing upload", "filename", header.Filename, "error", result.Err)
		writeError(w, statusFor(result.Err), runErrorBody(result.Err))
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Invoice:    result.Invoice,
		Extraction: result.Extraction,
		Warnings:   result.Validation.Warnings,
		PDFURL:     result.PDFURL,
		XMLURL:     result.XMLURL,
		Metadata:   result.Metadata,
	})
}

// handleListInvoices returns all stored invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	if records == nil {
		records = []*invoice.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) (*invoice.Record, bool) {
	rec, err := s.records.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			writeError(w, http.StatusNotFound, errorBody{Error: "Invoice not found"})
		} else {
			slog.Error("Error getting invoice", "id", r.PathValue("id"), "error", err)
			writeError(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		}
		return nil, false
	}
	return rec, true
}

// handleGetInvoice returns a single invoice record
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.record(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteInvoice removes an invoice and its files
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			writeError(w, http.StatusNotFound, errorBody{Error: "Invoice not found"})
			return
		}
		slog.Error("Error deleting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Error deleting invoice"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetFile downloads the PDF or XML of an invoice
func (s *Server) handleGetFile(ext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.record(w, r)
		if !ok {
			return
		}

		p, contentType := rec.PDFPath, "application/pdf"
		if ext == "xml" {
			p, contentType = rec.XMLPath, "application/xml"
		}
		if p == "" {
			writeError(w, http.StatusNotFound, errorBody{Error: "File not found"})
			return
		}

		data, err := s.records.File(p)
		if err != nil {
			slog.Error("Error reading invoice file", "path", p, "error", err)
			writeError(w, http.StatusNotFound, errorBody{Error: "File not found"})
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+"."+ext))
		w.Write(data)
	}
}

// handlePreview renders the stored invoice as HTML
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewer == nil {
		writeError(w, http.StatusNotFound, errorBody{Error: "Preview not available"})
		return
	}
	rec, ok := s.record(w, r)
	if !ok {
		return
	}

	html, err := s.previewer.HTML(rec.Invoice)
	if err != nil {
		slog.Error("Error rendering preview", "id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Error rendering preview"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

// handlePublicFile serves stored artifacts by their storage path
func (s *Server) handlePublicFile(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	if p == "" || strings.Contains(p, "..") {
		writeError(w, http.StatusNotFound, errorBody{Error: "File not found"})
		return
	}

	data, err := s.records.File(p)
	if err != nil {
		writeError(w, http.StatusNotFound, errorBody{Error: "File not found"})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
