package expense

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wenqian/expense-scanner/internal/record"
	"github.com/wenqian/expense-scanner/internal/stats"
)

// maxUploadSize bounds multipart parsing; high-resolution phone screenshots
// of long transaction logs can be large.
const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListRecords returns the collection sorted newest first
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Records()
	if err != nil {
		slog.Error("Error listing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleClearRecords empties the collection
func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearAll(); err != nil {
		slog.Error("Error clearing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload runs one recognition batch over the uploaded files
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "Upload is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No files were selected. Please choose at least one image.",
		})
		return
	}

	files := make([]UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading upload", "error", err, "filename", header.Filename)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Error reading file. Please try again.",
			})
			return
		}
		files = append(files, file)
	}

	newCount, err := s.service.ProcessUpload(r.Context(), files)
	if err != nil {
		slog.Error("Error processing upload batch", "error", err, "files", len(files))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Recognition failed: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"new_records": newCount})
}

func readUpload(header *multipart.FileHeader) (UploadFile, error) {
	f, err := header.Open()
	if err != nil {
		return UploadFile{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return UploadFile{}, fmt.Errorf("reading upload: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".webp":
			contentType = "image/webp"
		case ".heic", ".heif":
			contentType = "image/heic"
		case ".pdf":
			contentType = "application/pdf"
		}
	}

	return UploadFile{Name: header.Filename, ContentType: contentType, Data: data}, nil
}

// handleProgress reports the current batch progress
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, processing := s.service.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":   progress,
		"processing": processing,
	})
}

// handleExportJSON downloads the grouped-by-month backup
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportJSON()
	if err != nil {
		slog.Error("Error exporting JSON", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="expense_backup_%s.json"`, time.Now().Format("2006-01-02")))
	w.Write(data)
}

// handleExportCSV downloads the spreadsheet export
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportCSV()
	if err != nil {
		slog.Error("Error exporting CSV", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="expense_export_%s.csv"`, time.Now().Format("2006-01-02")))
	w.Write(data)
}

// handleImport merges an exported JSON or CSV file into the collection
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error parsing form"})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No file was selected. Please choose a backup file.",
		})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading import file", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Error reading file. Please try again.",
		})
		return
	}

	newCount, err := s.service.ImportFile(header.Filename, content)
	if err != nil {
		slog.Error("Error importing file", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("Import failed: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"new_records": newCount})
}

// statsResponse is the summary payload behind the dashboard
type statsResponse struct {
	Records        int                            `json:"records"`
	Total          decimal.Decimal                `json:"total"`
	MonthlyAverage decimal.Decimal                `json:"monthly_average"`
	Months         []string                       `json:"months"`
	MonthlyTotals  map[string]decimal.Decimal     `json:"monthly_totals"`
	CategoryTotals map[string]decimal.Decimal     `json:"category_totals"`
	TopCategory    *stats.TopCategoryResult       `json:"top_category,omitempty"`
	Hourly         map[string][24]decimal.Decimal `json:"hourly"`
	Heatmap        []stats.HeatmapDay             `json:"heatmap"`
}

// handleStats computes the dashboard aggregations. The hourly query parameter
// selects count, amount or average bucketing.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Records()
	if err != nil {
		slog.Error("Error loading records for stats", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	mode := stats.HourlyMode(r.URL.Query().Get("hourly"))
	switch mode {
	case stats.HourlyCount, stats.HourlyAmount, stats.HourlyAverage:
	default:
		mode = stats.HourlyCount
	}

	resp := statsResponse{
		Records:        len(records),
		Total:          stats.Total(records),
		MonthlyAverage: stats.MonthlyAverage(records),
		Months:         stats.Months(records),
		MonthlyTotals:  stats.MonthlyTotals(records),
		CategoryTotals: labelKeys(stats.CategoryTotals(records)),
		Hourly:         labelKeys(stats.HourlyBuckets(records, mode)),
		Heatmap:        stats.HeatmapDays(records, time.Now(), 365),
	}
	if top, ok := stats.TopCategory(records); ok {
		resp.TopCategory = &top
	}
	writeJSON(w, http.StatusOK, resp)
}

// labelKeys rewrites category map keys as their labels for JSON object keys.
func labelKeys[V any](m map[record.Category]V) map[string]V {
	out := make(map[string]V, len(m))
	for c, v := range m {
		out[c.String()] = v
	}
	return out
}
