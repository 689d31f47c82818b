package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bliinkai/ingest/internal/loader"
	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleListKinds returns the record families and the canonical columns
// they accept, so UIs can build mapping pickers.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	type kindInfo struct {
		Kind     string   `json:"kind"`
		Columns  []string `json:"columns"`
		Required []string `json:"required"`
	}

	var out []kindInfo
	for _, kind := range []rows.Kind{
		rows.KindCustomer, rows.KindAccount, rows.KindTransaction,
		rows.KindRelationship, rows.KindList,
	} {
		out = append(out, kindInfo{
			Kind:     string(kind),
			Columns:  schema.DelimitedColumns[kind],
			Required: schema.Required[kind],
		})
	}
	writeJSON(w, out)
}

// handleLoad accepts a multipart file upload and starts a load. For
// delimited files the kind form field selects the record family; an
// optional mapping field (JSON object, canonical column -> source
// header) overrides header auto-matching.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Load.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
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

	var mapping map[string]string
	if mappingJSON := r.FormValue("mapping"); mappingJSON != "" {
		if err := json.Unmarshal([]byte(mappingJSON), &mapping); err != nil {
			writeError(w, http.StatusBadRequest, "invalid mapping format")
			return
		}
	}

	kind := rows.Kind(r.FormValue("kind"))

	loadID, err := s.service.StartLoad(r.Context(), header.Filename, data, kind, mapping)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, loader.ErrTooManyLoads) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, map[string]string{"load_id": loadID})
}

// handleLoadProgress streams load progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter.
func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	loadID := chi.URLParam(r, "loadID")
	if loadID == "" {
		writeError(w, http.StatusBadRequest, "missing load ID")
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(loadID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Progress percentage doubles as the event id, giving
			// reconnecting clients natural deduplication.
			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleLoadResult returns the final result of a load, blocking until
// the load completes.
func (s *Server) handleLoadResult(w http.ResponseWriter, r *http.Request) {
	loadID := chi.URLParam(r, "loadID")
	if loadID == "" {
		writeError(w, http.StatusBadRequest, "missing load ID")
		return
	}

	result, err := s.service.Result(loadID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, toResponse(result))
}

// handleCancelLoad cancels an in-progress load.
func (s *Server) handleCancelLoad(w http.ResponseWriter, r *http.Request) {
	loadID := chi.URLParam(r, "loadID")
	if loadID == "" {
		writeError(w, http.StatusBadRequest, "missing load ID")
		return
	}

	if err := s.service.CancelLoad(loadID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleExportFailedRows downloads the failed rows of a load as CSV.
func (s *Server) handleExportFailedRows(w http.ResponseWriter, r *http.Request) {
	loadID := chi.URLParam(r, "loadID")
	if loadID == "" {
		writeError(w, http.StatusBadRequest, "missing load ID")
		return
	}

	result, err := s.service.Result(loadID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "failed_rows_"+loadID+".csv"))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"status", "file_name", "line_number", "reason"})
	for _, row := range result.FailedRows {
		_ = cw.Write([]string{"failed", row.FileName, strconv.Itoa(row.LineNumber), row.Reason})
	}
	for _, row := range result.SkippedRows {
		_ = cw.Write([]string{"skipped", row.FileName, strconv.Itoa(row.LineNumber), row.Reason})
	}
	cw.Flush()
}

// handleBackfillAccounts re-runs the account ownership back-fill on
// demand, for operators fixing up historic loads.
func (s *Server) handleBackfillAccounts(w http.ResponseWriter, r *http.Request) {
	filled, err := s.service.Loader().BackfillAccountEntities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]int{"backfilled": filled})
}

// loadResponse is the wire shape of a completed load. Skips and
// failures are distinct outcomes; each skip carries a reason naming
// the row.
type loadResponse struct {
	LoadID      string    `json:"load_id"`
	Kind        string    `json:"kind"`
	FileName    string    `json:"file_name"`
	BatchID     string    `json:"batch_id"`
	TotalRows   int       `json:"total_rows"`
	Added       int       `json:"added"`
	Modified    int       `json:"modified"`
	Deleted     int       `json:"deleted"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	FutureDated int       `json:"future_dated"`
	SkippedRows []rowNote `json:"skipped_rows,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

type rowNote struct {
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
}

func toResponse(sum *loader.Summary) loadResponse {
	var skipped []rowNote
	for _, row := range sum.SkippedRows {
		skipped = append(skipped, rowNote{LineNumber: row.LineNumber, Reason: row.Reason})
	}
	return loadResponse{
		LoadID:      sum.LoadID,
		Kind:        sum.Kind,
		FileName:    sum.FileName,
		BatchID:     sum.BatchID,
		TotalRows:   sum.TotalRows,
		Added:       sum.Added,
		Modified:    sum.Modified,
		Deleted:     sum.Deleted,
		Skipped:     sum.Skipped,
		Failed:      len(sum.FailedRows),
		FutureDated: sum.FutureDated,
		SkippedRows: skipped,
		Warnings:    sum.Warnings,
		DurationMS:  sum.Duration.Milliseconds(),
		Error:       sum.Error,
	}
}
