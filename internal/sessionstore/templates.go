package sessionstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// osFacts are the operating-system template variables substituted into a
// rendered system prompt (§4.1 new_session: "renders any system-prompt
// template variables (operating-system facts)").
type osFacts struct {
	OS       string
	Arch     string
	Hostname string
	NumCPU   int
}

func currentOSFacts() osFacts {
	host, _ := os.Hostname()
	return osFacts{OS: runtime.GOOS, Arch: runtime.GOARCH, Hostname: host, NumCPU: runtime.NumCPU()}
}

// RenderSystemPrompt substitutes {{.OS}}, {{.Arch}}, {{.Hostname}}, and
// {{.NumCPU}} into a template's system prompt text.
func RenderSystemPrompt(raw string) (string, error) {
	if !strings.Contains(raw, "{{") {
		return raw, nil
	}
	tpl, err := template.New("system_prompt").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sessionstore: parse system prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, currentOSFacts()); err != nil {
		return "", fmt.Errorf("sessionstore: render system prompt template: %w", err)
	}
	return buf.String(), nil
}

// TemplateCache caches parsed agent templates, invalidated on write by a
// filesystem watcher (SPEC_FULL's fsnotify wiring) rather than reread on
// every new_session call.
type TemplateCache struct {
	mu      sync.RWMutex
	root    *workspace.Root
	cache   map[string]*model.Document
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewTemplateCache starts watching root.TemplatesDir() for changes. If the
// watcher cannot be started (e.g. inotify exhaustion), the cache still
// works, just always reads through to disk.
func NewTemplateCache(root *workspace.Root, logger *slog.Logger) *TemplateCache {
	if logger == nil {
		logger = slog.Default()
	}
	tc := &TemplateCache{
		root:   root,
		cache:  make(map[string]*model.Document),
		logger: logger.With("component", "template_cache"),
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		tc.logger.Warn("fsnotify unavailable, template cache will not hot-reload", "error", err)
		return tc
	}
	if err := w.Add(root.TemplatesDir()); err != nil {
		tc.logger.Warn("failed to watch templates dir", "error", err)
		w.Close()
		return tc
	}
	tc.watcher = w
	go tc.watchLoop()
	return tc
}

func (tc *TemplateCache) watchLoop() {
	for {
		select {
		case ev, ok := <-tc.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				tc.invalidate(ev.Name)
			}
		case err, ok := <-tc.watcher.Errors:
			if !ok {
				return
			}
			tc.logger.Warn("template watcher error", "error", err)
		}
	}
}

func (tc *TemplateCache) invalidate(path string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for name := range tc.cache {
		if tc.root.TemplatePath(name) == path {
			delete(tc.cache, name)
		}
	}
}

// Close stops the underlying watcher, if any.
func (tc *TemplateCache) Close() error {
	if tc.watcher != nil {
		return tc.watcher.Close()
	}
	return nil
}

// Load returns the named template document, from cache if present.
func (tc *TemplateCache) Load(name string) (*model.Document, error) {
	tc.mu.RLock()
	if doc, ok := tc.cache[name]; ok {
		tc.mu.RUnlock()
		clone := *doc
		return &clone, nil
	}
	tc.mu.RUnlock()

	var doc model.Document
	if err := workspace.ReadYAML(tc.root.TemplatePath(name), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: template %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: template %q: %v", ErrCorrupt, name, err)
	}

	if tc.watcher != nil {
		tc.mu.Lock()
		tc.cache[name] = &doc
		tc.mu.Unlock()
	}

	clone := doc
	return &clone, nil
}
