package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSnapshotCountsStatusClasses(t *testing.T) {
	m := NewMetrics(8)
	m.Observe(10, 200)
	m.Observe(20, 201)
	m.Observe(30, 404)
	m.Observe(40, 500)

	snap := m.Snapshot()
	if snap.Total != 4 {
		t.Errorf("Total = %d, want 4", snap.Total)
	}
	if snap.StatusCount["2xx"] != 2 || snap.StatusCount["4xx"] != 1 || snap.StatusCount["5xx"] != 1 {
		t.Errorf("StatusCount = %v", snap.StatusCount)
	}
	if snap.AvgMs != 25 {
		t.Errorf("AvgMs = %v, want 25", snap.AvgMs)
	}
}

func TestWindowWrapsWithoutLosingTotals(t *testing.T) {
	m := NewMetrics(4)
	for i := 0; i < 10; i++ {
		m.Observe(float64(i), 200)
	}
	snap := m.Snapshot()
	if snap.Total != 10 {
		t.Errorf("Total = %d, want 10", snap.Total)
	}
	// Window holds the last 4 samples: 6,7,8,9.
	if snap.AvgMs != 7.5 {
		t.Errorf("AvgMs = %v, want 7.5", snap.AvgMs)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewMetrics(8)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/callback", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := m.Snapshot()
	if snap.Total != 1 || snap.StatusCount["4xx"] != 1 {
		t.Errorf("snapshot = %+v, want one 4xx observation", snap)
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := NewMetrics(4).Snapshot()
	if snap.Total != 0 || snap.AvgMs != 0 || snap.P95Ms != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}
}
