package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"venue-intel-pipeline/pkg/metrics"
)

// Change is delivered to subscribers when a reload produced a different
// configuration. Fields names the summary keys that moved; Err is set when
// the reloaded config failed validation and was discarded.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

// Watcher re-reads configuration on an interval so serve mode picks up
// budget and threshold changes without a restart. When CONFIG_FILE names an
// env file, a changed mtime re-applies it before the reload. Polling on a
// multi-second interval; fsnotify would not buy anything here.
type Watcher struct {
	interval time.Duration
	envFile  string

	mu      sync.Mutex
	current *Config
	envSeen time.Time
	subs    []chan Change
	stop    chan struct{}
	closed  bool

	reloads  *metrics.Counter
	failures *metrics.Counter
}

func NewWatcher(interval time.Duration) *Watcher {
	w := &Watcher{
		interval: interval,
		envFile:  strings.TrimSpace(os.Getenv("CONFIG_FILE")),
		current:  Load(),
		reloads:  metrics.Default.Counter("config_reload_total", "Total number of config reload attempts"),
		failures: metrics.Default.Counter("config_reload_failures_total", "Total number of failed config reloads"),
	}
	return w
}

// Current returns the most recent configuration that passed validation.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe returns a channel of Change notifications. Slow receivers miss
// updates rather than stalling the reload loop; the channel closes with the
// watcher.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, 4)
	w.subs = append(w.subs, ch)
	return ch
}

// Start launches the reload loop. Calling it twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil || w.closed {
		return
	}
	w.stop = make(chan struct{})
	go w.run(w.stop)
}

// Close stops the loop and closes all subscriber channels.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.stop != nil {
		close(w.stop)
	}
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

func (w *Watcher) run(stop chan struct{}) {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	w.refreshEnvFile()

	next := Load()
	if err := next.Validate(); err != nil {
		w.failures.Inc(1)
		w.publish(Change{Old: w.Current(), New: next, Err: fmt.Errorf("reloaded config rejected: %w", err)})
		return
	}

	prev := w.Current()
	fields := changedFields(prev, next)
	if len(fields) == 0 {
		return
	}

	w.reloads.Inc(1)
	w.mu.Lock()
	w.current = next
	w.mu.Unlock()
	w.publish(Change{Old: prev, New: next, Fields: fields})
}

// refreshEnvFile re-applies CONFIG_FILE into the environment when its mtime
// advanced, so the subsequent Load sees the edited values.
func (w *Watcher) refreshEnvFile() {
	if w.envFile == "" {
		return
	}
	fi, err := os.Stat(w.envFile)
	if err != nil || !fi.ModTime().After(w.envSeen) {
		return
	}
	w.envSeen = fi.ModTime()
	if err := godotenv.Overload(w.envFile); err != nil {
		w.failures.Inc(1)
	}
}

func (w *Watcher) publish(chg Change) {
	w.mu.Lock()
	subs := append([]chan Change(nil), w.subs...)
	w.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- chg:
		default:
		}
	}
}

// changedFields diffs the loggable summary plus the pipeline knobs the
// summary leaves out. Names follow the summary's snake_case keys since
// that is what lands in the "config applied" log line.
func changedFields(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	prev, next := a.GetConfigSummary(), b.GetConfigSummary()
	var fields []string
	for key, nv := range next {
		if !reflect.DeepEqual(prev[key], nv) {
			fields = append(fields, key)
		}
	}
	if a.Pipeline.ExtractorConcurrency != b.Pipeline.ExtractorConcurrency {
		fields = append(fields, "extractor_concurrency")
	}
	if a.Pipeline.StaleRunThresholdMs != b.Pipeline.StaleRunThresholdMs {
		fields = append(fields, "stale_run_threshold_ms")
	}
	if !reflect.DeepEqual(a.Pipeline.CandidatePaths, b.Pipeline.CandidatePaths) {
		fields = append(fields, "candidate_paths")
	}
	if !reflect.DeepEqual(a.Pipeline.NormalizerRules, b.Pipeline.NormalizerRules) {
		fields = append(fields, "normalizer_rules")
	}
	if a.EnableFileLogging != b.EnableFileLogging || a.LogFile != b.LogFile {
		fields = append(fields, "file_logging")
	}
	if a.MetricsEnabled != b.MetricsEnabled || a.MetricsPath != b.MetricsPath {
		fields = append(fields, "metrics")
	}
	if a.ProfilingEnabled != b.ProfilingEnabled {
		fields = append(fields, "profiling")
	}
	sort.Strings(fields)
	return fields
}
