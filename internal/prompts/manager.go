package prompts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	errs "venue-intel-pipeline/pkg/errors"
)

// Manager loads, compiles and renders prompt templates.
// Templates are compiled once at startup for performance.
// Simple and extensible: variants can be added as new files (e.g., extraction_user@v2.txt.tmpl).
type Manager struct {
	mu   sync.RWMutex
	tpls map[string]*template.Template
}

// NewManager parses all embedded templates. If overrideDir is non-empty,
// any .txt.tmpl file found there replaces the embedded template with the
// same logical name, so prompts can be tuned without a rebuild.
func NewManager(overrideDir string) (*Manager, error) {
	m := &Manager{tpls: make(map[string]*template.Template)}

	// Walk embedded FS and parse .tmpl files
	err := fs.WalkDir(FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".txt.tmpl") {
			return nil
		}
		b, rerr := fs.ReadFile(FS(), p)
		if rerr != nil {
			return fmt.Errorf("read template %s: %w", p, rerr)
		}
		return m.compile(filepath.Base(p), string(b))
	})
	if err != nil {
		return nil, errs.NewConfig("prompts.NewManager", "failed to load prompts", err)
	}

	if overrideDir != "" {
		if err := m.loadOverrides(overrideDir); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// loadOverrides compiles disk templates over the embedded set. A missing
// directory is a config error: if the operator pointed at a dir, it must exist.
func (m *Manager) loadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.NewConfig("prompts.loadOverrides", fmt.Sprintf("failed to read prompt dir %s", dir), err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt.tmpl") {
			continue
		}
		b, rerr := os.ReadFile(filepath.Join(dir, e.Name()))
		if rerr != nil {
			return errs.NewConfig("prompts.loadOverrides", fmt.Sprintf("failed to read template %s", e.Name()), rerr)
		}
		if cerr := m.compile(e.Name(), string(b)); cerr != nil {
			return errs.NewConfig("prompts.loadOverrides", fmt.Sprintf("failed to parse template %s", e.Name()), cerr)
		}
	}
	return nil
}

func (m *Manager) compile(base, body string) error {
	name := strings.TrimSuffix(base, ".txt.tmpl")
	tpl, err := template.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", base, err)
	}
	m.mu.Lock()
	m.tpls[name] = tpl
	m.mu.Unlock()
	return nil
}

// Render executes a named template with data and returns the result string.
func (m *Manager) Render(name string, data any) (string, error) {
	m.mu.RLock()
	tpl, ok := m.tpls[name]
	m.mu.RUnlock()
	if !ok {
		return "", errs.NewConfig("prompts.Render", fmt.Sprintf("prompt template not found: %s", name), nil)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", errs.NewIntegrity("prompts.Render", fmt.Sprintf("execute template %s", name), err)
	}
	return sb.String(), nil
}

// Names returns the logical names of all loaded templates, for diagnostics.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tpls))
	for n := range m.tpls {
		names = append(names, n)
	}
	return names
}
