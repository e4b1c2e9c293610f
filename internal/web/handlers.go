package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/provisioner/internal/ingest"
	"github.com/JonMunkholm/provisioner/internal/pipeline"
	"github.com/JonMunkholm/provisioner/internal/report"
)

// fileEnvelope carries one emitted report document inline in the response.
type fileEnvelope struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Base64      string `json:"base64"`
}

// notificationStatus reports how one notification channel settled.
type notificationStatus struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// importResponse is the full-import response body.
type importResponse struct {
	Message       string                  `json:"message"`
	BatchID       string                  `json:"batchId"`
	Summary       pipeline.Summary        `json:"summary"`
	Outcomes      []pipeline.RowOutcome   `json:"outcomes"`
	Files         map[string]fileEnvelope `json:"files"`
	Notifications []notificationStatus    `json:"notifications"`
}

// handleImport processes an uploaded workbook. With previewOnly=true, or when
// no column mappings are submitted, it only parses the file and returns the
// detected columns with sample rows; otherwise it maps the rows per the
// submitted mappings and runs the full pipeline.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	var mappings []ingest.ColumnMapping
	if mappingJSON := r.FormValue("mappings"); mappingJSON != "" {
		if err := json.Unmarshal([]byte(mappingJSON), &mappings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid mappings format")
			return
		}
	}

	// Without mappings there is nothing to run, so the request degrades to
	// a preview, same as an explicit previewOnly.
	if r.FormValue("previewOnly") == "true" || len(mappings) == 0 {
		preview, err := ingest.ParsePreview(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, preview)
		return
	}

	rows, err := ingest.ParseAndMap(data, mappings)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ingest.ErrEmptyWorkbook) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	result, err := s.importer.Run(r.Context(), rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rep, err := report.Emit(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	channels := s.notifier.Dispatch(r.Context(), result, rep)
	notifications := make([]notificationStatus, len(channels))
	for i, c := range channels {
		notifications[i] = notificationStatus{Channel: string(c.Channel), OK: c.OK}
		if c.Err != nil {
			notifications[i].Error = c.Err.Error()
		}
	}

	summary := result.Summary()
	writeJSON(w, importResponse{
		Message:  fmt.Sprintf("processed %d rows", summary.Total),
		BatchID:  result.BatchID,
		Summary:  summary,
		Outcomes: result.Outcomes,
		Files: map[string]fileEnvelope{
			"json": {
				Filename:    rep.JSONName,
				ContentType: report.JSONMimeType,
				Base64:      base64.StdEncoding.EncodeToString(rep.JSON),
			},
			"workbook": {
				Filename:    rep.WorkbookName,
				ContentType: report.WorkbookMimeType,
				Base64:      base64.StdEncoding.EncodeToString(rep.Workbook),
			},
		},
		Notifications: notifications,
	})
}

// handleTemplate serves the importable workbook template.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := ingest.Template()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build template")
		return
	}

	w.Header().Set("Content-Type", report.WorkbookMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ingest.TemplateFilename))
	w.Write(data)
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
