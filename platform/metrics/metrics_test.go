package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soocke/framering-go/domain/capture"
)

type fakeSession struct {
	id    string
	stats capture.Stats
}

func (f *fakeSession) ID() string            { return f.id }
func (f *fakeSession) Stats() capture.Stats { return f.stats }

func TestMetrics_RefreshAndServe(t *testing.T) {
	m := New()
	s := &fakeSession{id: "abc", stats: capture.Stats{
		Ring:                 capture.RingStats{Frames: 3, Bytes: 3072, Committed: 10, DroppedOutOfOrder: 1},
		DroppedPoolExhausted: 2,
		InFlight:             1,
	}}
	m.Register(s)
	m.Register(s)
	if got := testutil.ToFloat64(m.sessionsTotal); got != 1 {
		t.Fatalf("sessions registered=%v want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`framering_ring_frames{session="abc"} 3`,
		`framering_ring_bytes{session="abc"} 3072`,
		`framering_frames_dropped{session="abc"} 3`,
		`framering_active_sessions 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}

	m.Unregister("abc")
	if got := testutil.ToFloat64(m.activeSessions); got != 0 {
		t.Fatalf("active sessions=%v after unregister", got)
	}
	if n := testutil.CollectAndCount(m.framesRetained); n != 0 {
		t.Fatalf("series left after unregister: %d", n)
	}
}

func TestRequestMiddleware_CountsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	for _, p := range []string{"/ok", "/missing", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if got := testutil.ToFloat64(m.requestsTotal); got != 3 {
		t.Errorf("requests=%v want 3", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal); got != 1 {
		t.Errorf("errors=%v want 1", got)
	}
}
