// Package monitoring carries the serve-mode observability helpers: latency
// sampling for the callback API, a JSON snapshot handler for quick
// inspection, and opt-in pprof wiring.
package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	pp "net/http/pprof"
)

// Metrics samples request durations into a fixed window and counts
// responses by status class. The window keeps only the most recent
// capacity samples; quantiles are over that window, totals are lifetime.
type Metrics struct {
	mu      sync.Mutex
	window  []float64 // milliseconds
	next    int
	filled  bool
	total   int64
	byClass [6]int64 // status/100; [2]=2xx, [4]=4xx, [5]=5xx
}

func NewMetrics(capacity int) *Metrics {
	if capacity <= 0 {
		capacity = 256
	}
	return &Metrics{window: make([]float64, capacity)}
}

// Observe records one request: duration in milliseconds plus its status.
func (m *Metrics) Observe(ms float64, status int) {
	m.mu.Lock()
	m.window[m.next] = ms
	m.next++
	if m.next == len(m.window) {
		m.next = 0
		m.filled = true
	}
	m.total++
	if cls := status / 100; cls >= 1 && cls <= 5 {
		m.byClass[cls]++
	}
	m.mu.Unlock()
}

// Snapshot summarizes the current window and lifetime counters.
type Snapshot struct {
	Total       int64
	AvgMs       float64
	P50Ms       float64
	P95Ms       float64
	StatusCount map[string]int64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.filled {
		n = len(m.window)
	}
	s := Snapshot{Total: m.total, StatusCount: map[string]int64{
		"2xx": m.byClass[2],
		"4xx": m.byClass[4],
		"5xx": m.byClass[5],
	}}
	if n == 0 {
		return s
	}
	samples := make([]float64, n)
	copy(samples, m.window[:n])
	var sum float64
	for _, v := range samples {
		sum += v
	}
	s.AvgMs = sum / float64(n)
	sort.Float64s(samples)
	s.P50Ms = quantile(samples, 50)
	s.P95Ms = quantile(samples, 95)
	return s
}

// quantile takes the nearest-rank value from an ascending sample slice.
func quantile(sorted []float64, pct int) float64 {
	i := (len(sorted) * pct) / 100
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

type respRecorder struct {
	http.ResponseWriter
	status int
}

func (r *respRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware measures every request's duration and final status into m.
// No per-route labels; the callback API is small enough to read in one pot.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &respRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.Observe(float64(time.Since(start))/float64(time.Millisecond), rec.status)
		})
	}
}

// MetricsHandler renders the snapshot plus runtime stats as JSON.
func MetricsHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		snap := m.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"time":             time.Now().Format(time.RFC3339),
			"requests_total":   snap.Total,
			"responses":        snap.StatusCount,
			"duration_ms_avg":  snap.AvgMs,
			"duration_ms_p50":  snap.P50Ms,
			"duration_ms_p95":  snap.P95Ms,
			"goroutines":       runtime.NumGoroutine(),
			"mem_alloc_bytes":  ms.Alloc,
			"heap_inuse_bytes": ms.HeapInuse,
			"gc_num":           ms.NumGC,
		})
	})
}

// RegisterPprof mounts the standard pprof surface under /debug/pprof/.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pp.Trace)
	for _, prof := range []string{"goroutine", "heap", "allocs", "block", "mutex"} {
		mux.Handle("/debug/pprof/"+prof, pp.Handler(prof))
	}
}

// EnableProfiling toggles the block/mutex sample rates. CPU profiling stays
// off until someone hits /debug/pprof/profile.
func EnableProfiling(enabled bool) {
	if enabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(5)
		return
	}
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}
