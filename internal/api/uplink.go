package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
	"github.com/nerrad567/logix-uplink/internal/reading"
	"github.com/nerrad567/logix-uplink/internal/staging"
	"github.com/nerrad567/logix-uplink/internal/uplink"
)

// UplinkSummary is the non-secret part of the uplink configuration.
type UplinkSummary struct {
	Target            string   `json:"target"`
	Active            bool     `json:"active"`
	TokenSource       string   `json:"token_source"`
	SubmitURL         string   `json:"submit_url"`
	Fields            []string `json:"fields"`
	MaxDuplicateRetry int      `json:"max_duplicate_retry"`
	ScheduleMode      string   `json:"schedule_mode"`
	IntervalSeconds   int      `json:"interval_seconds,omitempty"`
}

// StatusResponse is returned by GET /uplink/status.
type StatusResponse struct {
	Uplink    UplinkSummary          `json:"uplink"`
	Scheduler uplink.SchedulerStatus `json:"scheduler"`
	LastPass  *uplink.PassReport     `json:"last_pass,omitempty"`
	Staging   map[string]int         `json:"staging"`
	Permanent int                    `json:"permanent"`
}

// StagingRow is one staging row as returned by GET /uplink/staging.
type StagingRow struct {
	ID          int64              `json:"id"`
	Device      string             `json:"device"`
	Date        string             `json:"date"`
	Values      map[string]float64 `json:"values"`
	Outcome     string             `json:"outcome"`
	Note        string             `json:"note,omitempty"`
	DeliveredAt string             `json:"delivered_at,omitempty"`
}

// StagingResponse is a page of staging rows.
type StagingResponse struct {
	Rows   []StagingRow `json:"rows"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// outcomeFilters maps accepted ?outcome= values to stored status values.
var outcomeFilters = map[string]string{
	"":                     "",
	"unset":                "unset",
	"sent":                 string(reading.OutcomeSent),
	"terkirim":             string(reading.OutcomeSent),
	"retry":                string(reading.OutcomeRetry),
	"duplicate_unresolved": string(reading.OutcomeDuplicateUnresolved),
	"duplikasi":            string(reading.OutcomeDuplicateUnresolved),
}

// handleUplinkStatus returns the configuration summary, scheduler state,
// the last pass and staging counts.
func (s *Server) handleUplinkStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.staging.CountByOutcome(r.Context())
	if err != nil {
		s.logger.Error("counting staging rows", "error", err)
		writeInternalError(w, "failed to read staging table")
		return
	}
	permanent, err := s.staging.CountPermanent(r.Context())
	if err != nil {
		s.logger.Error("counting permanent rows", "error", err)
		writeInternalError(w, "failed to read permanent table")
		return
	}

	resp := StatusResponse{
		Uplink:    s.uplinkSummary(),
		Scheduler: s.scheduler.Status(),
		Staging:   make(map[string]int, len(counts)),
		Permanent: permanent,
	}
	for outcome, n := range counts {
		resp.Staging[outcome.String()] = n
	}
	if last, ok := s.passes.LastPass(); ok {
		resp.LastPass = &last
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) uplinkSummary() UplinkSummary {
	cfg := s.uplinkCfg
	source := "url"
	if cfg.StaticToken != "" {
		source = "static"
	}
	fields := append([]string(nil), cfg.Fields...)
	sort.Strings(fields)

	sum := UplinkSummary{
		Target:            cfg.Target,
		Active:            cfg.Active,
		TokenSource:       source,
		SubmitURL:         cfg.SubmitURL,
		Fields:            fields,
		MaxDuplicateRetry: cfg.MaxDuplicateRetry,
		ScheduleMode:      cfg.Schedule.Mode,
	}
	if cfg.Schedule.Mode == config.ScheduleInterval {
		sum.IntervalSeconds = cfg.Schedule.IntervalSeconds
	}
	return sum
}

// handleListStaging returns a page of staging rows.
//
// Query parameters: outcome (unset, sent, retry, duplicate_unresolved or the
// stored status text), limit, offset.
func (s *Server) handleListStaging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	outcome, ok := outcomeFilters[strings.ToLower(q.Get("outcome"))]
	if !ok {
		writeBadRequest(w, "unknown outcome filter: "+q.Get("outcome"))
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.staging.List(r.Context(), staging.Filter{Outcome: outcome, Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("listing staging rows", "error", err)
		writeInternalError(w, "failed to read staging table")
		return
	}

	resp := StagingResponse{
		Rows:   make([]StagingRow, 0, len(result.Readings)),
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	}
	for _, rd := range result.Readings {
		resp.Rows = append(resp.Rows, stagingRow(rd))
	}
	writeJSON(w, http.StatusOK, resp)
}

func stagingRow(rd reading.Reading) StagingRow {
	row := StagingRow{
		ID:      rd.ID,
		Device:  rd.Device,
		Date:    rd.Date.Format(reading.TimeLayout),
		Values:  rd.Values,
		Outcome: rd.Outcome.String(),
		Note:    rd.Note,
	}
	if rd.DeliveredAt != nil {
		row.DeliveredAt = rd.DeliveredAt.Format(reading.TimeLayout)
	}
	return row
}

// handleRunPass queues a manual pass on the scheduler goroutine.
func (s *Server) handleRunPass(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.Trigger()
	switch {
	case err == nil:
		s.logger.Info("manual pass queued", "request_id", r.Context().Value(ctxKeyRequestID))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, uplink.ErrInactive):
		writeError(w, http.StatusConflict, ErrCodeUplinkInactive, "uplink is inactive")
	case errors.Is(err, uplink.ErrTriggerPending):
		writeError(w, http.StatusConflict, ErrCodePassPending, "a manual pass is already queued")
	default:
		writeInternalError(w, err.Error())
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}
