// Package health runs component health checks for serve mode. Checkers are
// registered once at startup; CheckAll fans them out with a shared deadline
// and aggregates the worst status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"venue-intel-pipeline/internal/constants"
)

// Status of a component or the system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth is the outcome of one checker.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth aggregates all component outcomes.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker is one component probe.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func (cf CheckFunc) Check(ctx context.Context) ComponentHealth { return cf.fn(ctx) }
func (cf CheckFunc) Name() string                              { return cf.name }

// NewCheckFunc wraps fn as a named Checker.
func NewCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) Checker {
	return CheckFunc{name: name, fn: fn}
}

// Manager holds the registered checkers.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	started  time.Time
	timeout  time.Duration
}

func NewManager() *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		started:  time.Now(),
		timeout:  constants.HealthTimeoutDefault,
	}
}

// Register adds or replaces a checker by name.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// CheckAll runs every checker concurrently under the manager deadline.
func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan ComponentHealth, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			start := time.Now()
			ch := c.Check(ctx)
			ch.Name = c.Name()
			ch.LastChecked = start
			ch.Duration = time.Since(start)
			results <- ch
		}(c)
	}

	sys := SystemHealth{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.started),
		Components: make(map[string]ComponentHealth, len(checkers)),
	}
	for range checkers {
		ch := <-results
		sys.Components[ch.Name] = ch
		sys.Status = worse(sys.Status, ch.Status)
	}
	return sys
}

// Handler serves the aggregated health as JSON. Unhealthy systems answer
// 503 so load balancers can act on the status code alone.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := m.CheckAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if sys.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(sys)
	})
}

// severity orders statuses for aggregation.
var severity = map[Status]int{
	StatusHealthy:   0,
	StatusUnknown:   1,
	StatusDegraded:  2,
	StatusUnhealthy: 3,
}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Pinger is the store surface the DB checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewStoreChecker probes database connectivity.
func NewStoreChecker(db Pinger) Checker {
	return NewCheckFunc("database", func(ctx context.Context) ComponentHealth {
		if db == nil {
			return ComponentHealth{Status: StatusUnknown, Message: "no database configured"}
		}
		if err := db.Ping(ctx); err != nil {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: "database unreachable",
				Error:   err.Error(),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	})
}

// NewDataDirChecker probes that the data root exists and is writable by
// creating and removing a probe file.
func NewDataDirChecker(root string) Checker {
	return NewCheckFunc("datadir", func(ctx context.Context) ComponentHealth {
		fi, err := os.Stat(root)
		if err != nil || !fi.IsDir() {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("data root %s missing", root),
			}
		}
		probe := filepath.Join(root, ".health-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: "data root not writable",
				Error:   err.Error(),
			}
		}
		_ = os.Remove(probe)
		return ComponentHealth{
			Status:   StatusHealthy,
			Metadata: map[string]any{"root": root},
		}
	})
}
