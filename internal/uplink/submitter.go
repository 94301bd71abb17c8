package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

// maxResponseBytes bounds how much of a submission response is read.
const maxResponseBytes = 1 << 20

// defaultMaxDuplicateRetry applies when the configured bound is not positive.
const defaultMaxDuplicateRetry = 3

// BatchOutcome is the final state of one batch submission.
type BatchOutcome string

const (
	// BatchSent means the API accepted the batch and it was moved to permanent storage.
	BatchSent BatchOutcome = "sent"

	// BatchRetry means the batch was annotated retry with the failure reason.
	BatchRetry BatchOutcome = "retry"

	// BatchDuplicateUnresolved means duplicate conflicts exceeded the bound.
	BatchDuplicateUnresolved BatchOutcome = "duplicate_unresolved"

	// BatchResolved means every row was deleted as an upstream duplicate.
	BatchResolved BatchOutcome = "resolved"

	// BatchFailed means a storage error stopped the submission midway.
	BatchFailed BatchOutcome = "failed"
)

// Result summarises one Submit call.
type Result struct {
	Key             string       `json:"key"`
	Start           time.Time    `json:"start"`
	End             time.Time    `json:"end"`
	Rows            int          `json:"rows"`
	Outcome         BatchOutcome `json:"outcome"`
	Attempts        int          `json:"attempts"`
	DuplicateRounds int          `json:"duplicate_rounds"`
	Deleted         int64        `json:"deleted"`
	Sent            int64        `json:"sent"`
	Reason          string       `json:"reason,omitempty"`
}

// SubmitterConfig holds the upstream account settings.
type SubmitterConfig struct {
	UID       string
	SubmitURL string

	// Fields are the validated parameter columns sent per reading.
	Fields []string

	MaxDuplicateRetry int
	Location          *time.Location
}

// Submitter drives one batch through sign, post and write-back,
// resolving duplicate conflicts with a bounded loop.
//
// Submitter holds no per-batch state between calls.
type Submitter struct {
	store  Store
	tokens TokenProvider
	client *http.Client
	cfg    SubmitterConfig
	logger Logger
	now    func() time.Time
}

// NewSubmitter creates a Submitter. The client's timeout bounds each POST.
func NewSubmitter(store Store, tokens TokenProvider, client *http.Client, cfg SubmitterConfig) *Submitter {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.MaxDuplicateRetry <= 0 {
		cfg.MaxDuplicateRetry = defaultMaxDuplicateRetry
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Submitter{
		store:  store,
		tokens: tokens,
		client: client,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the submitter.
func (s *Submitter) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// attempt is the state of one Submit call. It never outlives the call.
type attempt struct {
	result     Result
	duplicates int
}

// Submit delivers batch and records the outcome in storage.
//
// The returned error is nil for sent and resolved batches. Otherwise it
// wraps ErrAuth, ErrTransport, ErrRejected or ErrDuplicateUnresolved
// (the batch has been annotated accordingly), or ErrStorage (the write-back
// itself failed and the pass should stop).
func (s *Submitter) Submit(ctx context.Context, batch Batch) (Result, error) {
	st := &attempt{result: Result{
		Key:   batch.Key,
		Start: batch.Start,
		End:   batch.End,
		Rows:  len(batch.Readings),
	}}
	current := batch.Readings

	for {
		token, err := s.tokens.FetchToken(ctx)
		if err != nil {
			s.logger.Warn("credential fetch failed", "batch", batch.Key, "error", err)
			return s.retry(ctx, st, batch, reading.NoteAuthFailure, err)
		}

		st.result.Attempts++
		s.logger.Info("submitting batch",
			"batch", batch.Key,
			"start", batch.Start.Format(reading.TimeLayout),
			"end", batch.End.Format(reading.TimeLayout),
			"rows", len(current),
			"attempt", st.result.Attempts,
		)

		resp, err := s.post(ctx, token, current)
		if err != nil {
			s.logger.Warn("submission failed", "batch", batch.Key, "error", err)
			return s.retry(ctx, st, batch, transportReason(err), err)
		}

		if resp.accepted() {
			moved, err := s.store.MarkSent(ctx, batch.Start, batch.End, s.now())
			if err != nil {
				return s.storageFailure(st, "marking batch sent", err)
			}
			st.result.Outcome = BatchSent
			st.result.Sent = moved
			s.logger.Info("batch delivered", "batch", batch.Key, "rows", moved)
			return st.result, nil
		}

		desc := resp.description()
		if !isDuplicate(desc) {
			s.logger.Warn("batch rejected", "batch", batch.Key, "desc", desc)
			return s.retry(ctx, st, batch, desc, fmt.Errorf("%w: %s", ErrRejected, desc))
		}

		st.duplicates++
		st.result.DuplicateRounds = st.duplicates
		if st.duplicates >= s.cfg.MaxDuplicateRetry {
			if _, err := s.store.MarkDuplicateUnresolved(ctx, batch.Start, batch.End); err != nil {
				return s.storageFailure(st, "marking duplicate unresolved", err)
			}
			st.result.Outcome = BatchDuplicateUnresolved
			st.result.Reason = reading.NoteDuplicateUnresolved
			s.logger.Error("duplicate conflict unresolved, manual check required",
				"batch", batch.Key, "rounds", st.duplicates)
			return st.result, fmt.Errorf("%w: batch %s after %d rounds", ErrDuplicateUnresolved, batch.Key, st.duplicates)
		}

		stamps, skipped := resp.duplicateTimestamps(s.cfg.Location)
		for _, raw := range skipped {
			s.logger.Warn("ignoring unparseable duplicate timestamp", "batch", batch.Key, "value", raw)
		}
		for _, ts := range stamps {
			n, err := s.store.DeleteExact(ctx, ts)
			if err != nil {
				return s.storageFailure(st, "deleting duplicate", err)
			}
			st.result.Deleted += n
			s.logger.Info("deleted upstream duplicate", "batch", batch.Key, "date", ts.Format(reading.TimeLayout), "rows", n)
		}

		// Storage is authoritative for what is left after the deletes.
		current, err = s.store.FetchRange(ctx, batch.Start, batch.End)
		if err != nil {
			return s.storageFailure(st, "re-fetching batch", err)
		}
		if len(current) == 0 {
			st.result.Outcome = BatchResolved
			s.logger.Info("no rows left after duplicate removal", "batch", batch.Key)
			return st.result, nil
		}
	}
}

// retry annotates the batch range retry with reason and returns cause.
func (s *Submitter) retry(ctx context.Context, st *attempt, batch Batch, reason string, cause error) (Result, error) {
	if _, err := s.store.MarkRetry(ctx, batch.Start, batch.End, reason); err != nil {
		return s.storageFailure(st, "marking batch retry", err)
	}
	st.result.Outcome = BatchRetry
	st.result.Reason = reason
	return st.result, cause
}

func (s *Submitter) storageFailure(st *attempt, op string, err error) (Result, error) {
	st.result.Outcome = BatchFailed
	st.result.Reason = err.Error()
	s.logger.Error("storage failure", "batch", st.result.Key, "op", op, "error", err)
	return st.result, fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// post signs readings and sends them. Network failures and unreadable
// bodies are returned wrapping ErrTransport.
func (s *Submitter) post(ctx context.Context, token string, readings []reading.Reading) (submitResponse, error) {
	signed, err := BuildPayload(s.cfg.UID, s.cfg.Fields, readings).Sign(token)
	if err != nil {
		return submitResponse{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	body, err := json.Marshal(submitRequest{Token: signed})
	if err != nil {
		return submitResponse{}, fmt.Errorf("%w: encoding request: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SubmitURL, bytes.NewReader(body))
	if err != nil {
		return submitResponse{}, fmt.Errorf("%w: creating request: %w", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return submitResponse{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return submitResponse{}, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return submitResponse{}, fmt.Errorf("%w: HTTP %d: invalid response body: %w", ErrTransport, resp.StatusCode, err)
	}
	return out, nil
}

// transportReason strips the sentinel prefix so the stored note reads
// like the underlying failure.
func transportReason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrTransport.Error()+": ")
}
