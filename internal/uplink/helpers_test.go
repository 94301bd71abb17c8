package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

var jakarta = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		panic(err)
	}
	return loc
}()

var testFields = []string{"pH", "tss", "cod", "flow", "nh3n"}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, jakarta)
}

func newReading(ts time.Time) reading.Reading {
	return reading.Reading{
		Device: "DEV-01",
		Date:   ts,
		Values: map[string]float64{"pH": 7, "tss": 10, "cod": 30, "flow": 2.5, "nh3n": 0.3},
	}
}

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store with the same eligibility rules as the
// SQL repository.
type memStore struct {
	mu        sync.Mutex
	staging   []reading.Reading
	permanent []reading.Reading
	failOn    map[string]bool
	calls     []string
}

func newMemStore(times ...time.Time) *memStore {
	s := &memStore{failOn: map[string]bool{}}
	for _, ts := range times {
		s.staging = append(s.staging, newReading(ts))
	}
	return s
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func (s *memStore) record(op string) error {
	s.calls = append(s.calls, op)
	if s.failOn[op] {
		return errStoreDown
	}
	return nil
}

func (s *memStore) FetchPending(_ context.Context, now time.Time) ([]reading.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FetchPending"); err != nil {
		return nil, err
	}
	var out []reading.Reading
	for _, r := range s.staging {
		if r.Outcome.Eligible() && r.Date.Before(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) FetchRange(_ context.Context, start, end time.Time) ([]reading.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FetchRange"); err != nil {
		return nil, err
	}
	var out []reading.Reading
	for _, r := range s.staging {
		if r.Outcome.Eligible() && inRange(r.Date, start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, start, end, deliveredAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("MarkSent"); err != nil {
		return 0, err
	}
	var moved int64
	kept := s.staging[:0]
	for _, r := range s.staging {
		if r.Outcome.Eligible() && inRange(r.Date, start, end) {
			r.Outcome = reading.OutcomeSent
			r.Note = reading.NoteSent
			d := deliveredAt
			r.DeliveredAt = &d
			if !s.inPermanent(r) {
				s.permanent = append(s.permanent, r)
			}
			moved++
			continue
		}
		kept = append(kept, r)
	}
	s.staging = kept
	return moved, nil
}

func (s *memStore) inPermanent(r reading.Reading) bool {
	for _, p := range s.permanent {
		if p.Device == r.Device && p.Date.Equal(r.Date) {
			return true
		}
	}
	return false
}

func (s *memStore) annotate(start, end time.Time, o reading.Outcome, note string) int64 {
	var n int64
	for i := range s.staging {
		r := &s.staging[i]
		if r.Outcome.Eligible() && inRange(r.Date, start, end) {
			r.Outcome = o
			r.Note = note
			n++
		}
	}
	return n
}

func (s *memStore) MarkRetry(_ context.Context, start, end time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("MarkRetry"); err != nil {
		return 0, err
	}
	return s.annotate(start, end, reading.OutcomeRetry, reason), nil
}

func (s *memStore) MarkDuplicateUnresolved(_ context.Context, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("MarkDuplicateUnresolved"); err != nil {
		return 0, err
	}
	return s.annotate(start, end, reading.OutcomeDuplicateUnresolved, reading.NoteDuplicateUnresolved), nil
}

func (s *memStore) DeleteExact(_ context.Context, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteExact"); err != nil {
		return 0, err
	}
	var n int64
	kept := s.staging[:0]
	for _, r := range s.staging {
		if r.Outcome.Eligible() && r.Date.Equal(ts) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.staging = kept
	return n, nil
}

func (s *memStore) outcomes() map[reading.Outcome]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := map[reading.Outcome]int{}
	for _, r := range s.staging {
		m[r.Outcome]++
	}
	return m
}

func (s *memStore) notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.staging {
		out = append(out, r.Note)
	}
	return out
}

// fakeAPI is an httptest regulator with a token endpoint and a submission
// endpoint. The respond func decides each submission reply.
type fakeAPI struct {
	t          *testing.T
	server     *httptest.Server
	token      string
	tokenCode  int
	respond    func(n int, data []map[string]any) (int, string)
	mu         sync.Mutex
	tokenCalls int
	posts      []fakePost
}

type fakePost struct {
	auth string
	data []map[string]any
	uid  string
}

func newFakeAPI(t *testing.T, respond func(n int, data []map[string]any) (int, string)) *fakeAPI {
	t.Helper()
	api := &fakeAPI{t: t, token: "secret-credential", tokenCode: http.StatusOK, respond: respond}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.tokenCalls++
		code := api.tokenCode
		api.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte("  " + api.token + "\n"))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding submit body: %v", err)
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(body.Token, claims, func(tok *jwt.Token) (any, error) {
			return []byte(api.token), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			t.Errorf("submitted token does not verify: %v", err)
		}

		var data []map[string]any
		if raw, ok := claims["data"].([]any); ok {
			for _, item := range raw {
				if m, ok := item.(map[string]any); ok {
					data = append(data, m)
				}
			}
		}
		uid, _ := claims["uid"].(string)

		api.mu.Lock()
		api.posts = append(api.posts, fakePost{auth: r.Header.Get("Authorization"), data: data, uid: uid})
		n := len(api.posts)
		api.mu.Unlock()

		code, reply := api.respond(n, data)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(reply))
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) post(i int) fakePost {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts[i]
}

func (a *fakeAPI) setTokenCode(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenCode = code
}

func (a *fakeAPI) tokenCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenCalls
}

func (a *fakeAPI) postCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.posts)
}

func (a *fakeAPI) newSubmitter(store Store, maxDup int) *Submitter {
	return NewSubmitter(store,
		NewHTTPTokenProvider(a.server.URL+"/token", a.server.Client()),
		a.server.Client(),
		SubmitterConfig{
			UID:               "uid-123",
			SubmitURL:         a.server.URL + "/submit",
			Fields:            testFields,
			MaxDuplicateRetry: maxDup,
			Location:          jakarta,
		})
}

func alwaysOK(int, []map[string]any) (int, string) {
	return http.StatusOK, `{"status": true, "desc": "ok"}`
}

func quoteAll(ts ...time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = `"` + t.Format(reading.TimeLayout) + `"`
	}
	return "[" + strings.Join(parts, ",") + "]"
}
