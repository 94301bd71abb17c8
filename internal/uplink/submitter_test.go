package uplink

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

func batchOf(store *memStore) Batch {
	readings, _ := store.FetchRange(context.Background(), at(0, 0), at(23, 59))
	return NewBatch(BucketKey(readings[0].Date, jakarta), readings)
}

func TestSubmit_Success(t *testing.T) {
	store := newMemStore(at(10, 15), at(10, 45))
	api := newFakeAPI(t, alwaysOK)
	s := api.newSubmitter(store, 3)

	res, err := s.Submit(context.Background(), batchOf(store))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Outcome != BatchSent || res.Sent != 2 || res.Attempts != 1 {
		t.Errorf("Submit() = %+v, want sent 2 rows in 1 attempt", res)
	}
	if len(store.staging) != 0 || len(store.permanent) != 2 {
		t.Errorf("staging=%d permanent=%d, want 0/2", len(store.staging), len(store.permanent))
	}

	post := api.post(0)
	if post.auth != "Bearer secret-credential" {
		t.Errorf("Authorization = %q, want raw credential", post.auth)
	}
	if post.uid != "uid-123" || len(post.data) != 2 {
		t.Errorf("payload uid=%q rows=%d", post.uid, len(post.data))
	}
	if _, ok := post.data[0]["debit"]; !ok {
		t.Error("payload rows must carry debit")
	}
	if store.permanent[0].Note != reading.NoteSent || store.permanent[0].DeliveredAt == nil {
		t.Errorf("permanent row = %+v, want sukses with delivery time", store.permanent[0])
	}
}

func TestSubmit_GenericFailure(t *testing.T) {
	store := newMemStore(at(10, 15), at(10, 45))
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		return http.StatusOK, `{"status": false, "desc": "UID tidak dikenal"}`
	})
	s := api.newSubmitter(store, 3)

	res, err := s.Submit(context.Background(), batchOf(store))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Submit() error = %v, want ErrRejected", err)
	}
	if res.Outcome != BatchRetry || res.Reason != "UID tidak dikenal" {
		t.Errorf("Submit() = %+v", res)
	}
	if got := store.outcomes()[reading.OutcomeRetry]; got != 2 {
		t.Errorf("retry rows = %d, want 2", got)
	}
	for _, note := range store.notes() {
		if note != "UID tidak dikenal" {
			t.Errorf("note = %q, want the API desc", note)
		}
	}
}

func TestSubmit_MissingDesc(t *testing.T) {
	store := newMemStore(at(10, 15))
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		return http.StatusOK, `{"status": 0}`
	})

	res, _ := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if res.Reason != "unknown error" {
		t.Errorf("Reason = %q, want unknown error", res.Reason)
	}
}

func TestSubmit_TransportFailure(t *testing.T) {
	store := newMemStore(at(10, 15))
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		return http.StatusBadGateway, `<html>bad gateway</html>`
	})

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Submit() error = %v, want ErrTransport", err)
	}
	if res.Outcome != BatchRetry {
		t.Errorf("Outcome = %q, want retry", res.Outcome)
	}
	if !strings.Contains(res.Reason, "HTTP 502") || strings.HasPrefix(res.Reason, "uplink:") {
		t.Errorf("Reason = %q, want the underlying failure text", res.Reason)
	}
	if got := store.outcomes()[reading.OutcomeRetry]; got != 1 {
		t.Errorf("retry rows = %d, want 1", got)
	}
}

func TestSubmit_AuthFailure(t *testing.T) {
	store := newMemStore(at(10, 15), at(10, 45))
	api := newFakeAPI(t, alwaysOK)
	api.setTokenCode(http.StatusForbidden)

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Submit() error = %v, want ErrAuth", err)
	}
	if api.postCount() != 0 {
		t.Errorf("posts = %d, want none without a credential", api.postCount())
	}
	if res.Outcome != BatchRetry || res.Attempts != 0 {
		t.Errorf("Submit() = %+v, want retry with no attempts", res)
	}
	for _, note := range store.notes() {
		if note != reading.NoteAuthFailure {
			t.Errorf("note = %q, want %q", note, reading.NoteAuthFailure)
		}
	}
}

func TestSubmit_BoundedDuplicateRetry(t *testing.T) {
	store := newMemStore(at(10, 15), at(10, 30), at(10, 45))
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		// Duplicate conflict naming a timestamp that is not staged.
		return http.StatusOK, `{"status": false, "desc": "Terjadi duplikasi data", "data": ["2024-01-01 09:00:00"]}`
	})

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if !errors.Is(err, ErrDuplicateUnresolved) {
		t.Fatalf("Submit() error = %v, want ErrDuplicateUnresolved", err)
	}
	if api.postCount() != 3 || res.Attempts != 3 {
		t.Errorf("posts=%d attempts=%d, want 3", api.postCount(), res.Attempts)
	}
	if res.Outcome != BatchDuplicateUnresolved || res.DuplicateRounds != 3 {
		t.Errorf("Submit() = %+v", res)
	}
	if got := store.outcomes()[reading.OutcomeDuplicateUnresolved]; got != 3 {
		t.Errorf("unresolved rows = %d, want 3", got)
	}
	if len(store.permanent) != 0 {
		t.Errorf("permanent rows = %d, want 0", len(store.permanent))
	}
}

func TestSubmit_PartialResolution(t *testing.T) {
	store := newMemStore(at(10, 5), at(10, 15), at(10, 25), at(10, 35), at(10, 45))
	api := newFakeAPI(t, func(n int, data []map[string]any) (int, string) {
		if n == 1 {
			return http.StatusOK, `{"status": false, "desc": "Duplikasi", "data": ` + quoteAll(at(10, 15), at(10, 35)) + `}`
		}
		return http.StatusOK, `{"status": true}`
	})

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Outcome != BatchSent || res.Deleted != 2 || res.Sent != 3 || res.Attempts != 2 {
		t.Errorf("Submit() = %+v, want 2 deleted, 3 sent, 2 attempts", res)
	}
	if n := len(api.post(1).data); n != 3 {
		t.Errorf("resubmission carried %d rows, want 3", n)
	}
	if len(store.permanent) != 3 || len(store.staging) != 0 {
		t.Errorf("permanent=%d staging=%d, want 3/0", len(store.permanent), len(store.staging))
	}
}

func TestSubmit_AllRowsDuplicates(t *testing.T) {
	store := newMemStore(at(10, 15), at(10, 45))
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		return http.StatusOK, `{"status": false, "desc": "duplikasi", "data": ` + quoteAll(at(10, 15), at(10, 45)) + `}`
	})

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Outcome != BatchResolved || res.Deleted != 2 || api.postCount() != 1 {
		t.Errorf("Submit() = %+v posts=%d", res, api.postCount())
	}
	if len(store.staging) != 0 {
		t.Errorf("staging rows = %d, want 0", len(store.staging))
	}
}

func TestSubmit_CounterResetsPerCall(t *testing.T) {
	api := newFakeAPI(t, func(int, []map[string]any) (int, string) {
		return http.StatusOK, `{"status": false, "desc": "duplikasi", "data": []}`
	})
	store := newMemStore(at(10, 15), at(11, 15))
	s := api.newSubmitter(store, 2)

	pending, _ := store.FetchPending(context.Background(), at(12, 0))
	for i, b := range GroupByHour(pending, jakarta) {
		res, _ := s.Submit(context.Background(), b)
		if res.Attempts != 2 {
			t.Errorf("batch %d attempts = %d, want the full bound of 2", i+1, res.Attempts)
		}
	}
	if api.postCount() != 4 {
		t.Errorf("posts = %d, want 4", api.postCount())
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	store := newMemStore(at(10, 15))
	store.failOn["MarkSent"] = true
	api := newFakeAPI(t, alwaysOK)

	res, err := api.newSubmitter(store, 3).Submit(context.Background(), batchOf(store))
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errStoreDown) {
		t.Fatalf("Submit() error = %v, want ErrStorage wrapping the store error", err)
	}
	if res.Outcome != BatchFailed {
		t.Errorf("Outcome = %q, want failed", res.Outcome)
	}
}
