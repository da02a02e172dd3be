package curation

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/pkg/logging"
)

// Curator is one roster entry: who a callback sender is.
type Curator struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Roster maps callback sender ids to curators, loaded from curators.yaml
// (path from CURATORS_YAML_PATH, default ./curators.yaml):
//
//	"1001":
//	  name: Dana
//	  role: lead
//
// An unloaded roster resolves nobody, so every callback is refused until the
// file is present. That is deliberate; curation must not run open.
type Roster struct {
	mu     sync.RWMutex
	byID   map[string]Curator
	loaded bool
	path   string
	mtime  time.Time
	log    *logging.ComponentLogger
}

// NewRoster loads the roster from path. A missing or unreadable file is not
// fatal: the roster starts empty and a later Load or Watch pass picks the
// file up.
func NewRoster(path string, log *logging.Logger) *Roster {
	r := &Roster{
		byID: make(map[string]Curator),
		path: path,
		log:  log.WithComponent("curation"),
	}
	if err := r.Load(); err != nil {
		r.log.Warn("curator roster not loaded, callbacks will be refused",
			logging.String("path", path),
			logging.String("cause", err.Error()))
	} else {
		r.log.Info("curator roster loaded",
			logging.String("path", path),
			logging.Int("curators", r.Len()))
	}
	return r
}

// Load (re)reads the roster file.
func (r *Roster) Load() error {
	fi, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var byID map[string]Curator
	if err := yaml.Unmarshal(data, &byID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = byID
	r.loaded = true
	r.mtime = fi.ModTime()
	return nil
}

// Resolve looks a sender id up.
func (r *Roster) Resolve(id string) (Curator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// IsLoaded reports whether a roster file has ever been read successfully.
func (r *Roster) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Len returns the number of roster entries.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Watch polls the roster file and reloads it when its mtime moves, so
// curator changes land without a restart. Blocks until done is closed.
// Poll-based on purpose, same as the config watcher.
func (r *Roster) Watch(done <-chan struct{}) {
	interval := constants.RosterWatchIntervalDefault
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fi, err := os.Stat(r.path)
			if err != nil {
				continue
			}
			r.mu.RLock()
			changed := fi.ModTime().After(r.mtime)
			r.mu.RUnlock()
			if !changed {
				continue
			}
			if err := r.Load(); err != nil {
				r.log.Warn("curator roster reload failed",
					logging.String("path", r.path),
					logging.String("cause", err.Error()))
				continue
			}
			r.log.Info("curator roster reloaded",
				logging.String("path", r.path),
				logging.Int("curators", r.Len()))
		}
	}
}
