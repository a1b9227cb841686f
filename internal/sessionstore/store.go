// Package sessionstore implements spec §4.1: durable per-session
// documents, the append-only message log, monotonic id allocation, and
// session enumeration.
package sessionstore

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mikesmullin/daemon-sub001/internal/idalloc"
	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Store is the durable session store described in spec §4.1.
type Store struct {
	root      *workspace.Root
	counter   *idalloc.Counter
	locks     *Locker
	templates *TemplateCache
	logger    *slog.Logger

	labelMu    sync.RWMutex
	labelIndex map[string]map[string]struct{} // "key=value" -> session ids
	idLabels   map[string][]string            // session id -> its current "key=value" keys
}

// New builds a Store rooted at root, loading (and crash-checking) the id
// counter.
func New(root *workspace.Root, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	counter, err := idalloc.New(root)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: %w", err)
	}
	s := &Store{
		root:       root,
		counter:    counter,
		locks:      NewLocker(DefaultLockTimeout),
		templates:  NewTemplateCache(root, logger),
		logger:     logger.With("component", "sessionstore"),
		labelIndex: make(map[string]map[string]struct{}),
		idLabels:   make(map[string][]string),
	}
	s.rebuildLabelIndex()
	return s, nil
}

// rebuildLabelIndex scans every persisted session once at startup to seed
// the label secondary index (SPEC_FULL's composite-session-key
// supplement, grounded in the teacher's SessionKey(agentID, channel,
// channelID) indexing). Best-effort: a skipped/unreadable session is
// logged, not fatal.
func (s *Store) rebuildLabelIndex() {
	summaries, err := s.List()
	if err != nil {
		return
	}
	for _, summary := range summaries {
		doc, err := s.Load(summary.ID)
		if err != nil {
			continue
		}
		s.indexLabels(summary.ID, doc.Metadata.Labels)
	}
}

// indexLabels replaces the label index entries for id with the ones
// implied by labels, dropping any that no longer apply.
func (s *Store) indexLabels(id string, labels map[string]string) {
	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	for _, key := range s.idLabels[id] {
		if set, ok := s.labelIndex[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.labelIndex, key)
			}
		}
	}

	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		composite := k + "=" + v
		if s.labelIndex[composite] == nil {
			s.labelIndex[composite] = make(map[string]struct{})
		}
		s.labelIndex[composite][id] = struct{}{}
		keys = append(keys, composite)
	}
	s.idLabels[id] = keys
}

// ListByLabel returns a summary for every session carrying labels[key] ==
// value, sorted by id.
func (s *Store) ListByLabel(key, value string) ([]model.Summary, error) {
	composite := key + "=" + value
	s.labelMu.RLock()
	ids := make([]string, 0, len(s.labelIndex[composite]))
	for id := range s.labelIndex[composite] {
		ids = append(ids, id)
	}
	s.labelMu.RUnlock()
	sort.Strings(ids)

	out := make([]model.Summary, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session during label lookup", "id", id, "error", err)
			continue
		}
		var preview string
		if n := len(doc.Spec.Messages); n > 0 {
			preview = doc.Spec.Messages[n-1].Content
		}
		out = append(out, model.Summary{
			ID:           id,
			State:        doc.Metadata.FSMState,
			Name:         doc.Metadata.Name,
			Model:        doc.Metadata.Model,
			LastMessage:  preview,
			MessageCount: len(doc.Spec.Messages),
		})
	}
	return out, nil
}

// Close releases the template watcher.
func (s *Store) Close() error { return s.templates.Close() }

// Load reads a session document by id.
func (s *Store) Load(id string) (*model.Document, error) {
	var doc model.Document
	if err := workspace.ReadYAML(s.root.SessionPath(id), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: session %q: %v", ErrCorrupt, id, err)
	}
	return &doc, nil
}

// Save replaces a session document atomically. Readers never observe a
// partially written document (§4.1).
func (s *Store) Save(id string, doc *model.Document) error {
	if err := s.locks.Lock(id); err != nil {
		return err
	}
	defer s.locks.Unlock(id)
	return s.saveLocked(id, doc)
}

func (s *Store) saveLocked(id string, doc *model.Document) error {
	doc.Metadata.UpdatedAt = time.Now().UTC()
	if err := workspace.WriteYAMLAtomic(s.root.SessionPath(id), doc); err != nil {
		return err
	}
	s.indexLabels(id, doc.Metadata.Labels)
	return nil
}

// NewSession implements new_session: loads a template, renders its system
// prompt, allocates an id, saves the document, and optionally pushes the
// initial user prompt (§4.1).
func (s *Store) NewSession(template string, initialPrompt string) (string, error) {
	tpl, err := s.templates.Load(template)
	if err != nil {
		return "", err
	}

	id, err := s.counter.Allocate()
	if err != nil {
		return "", fmt.Errorf("sessionstore: allocate id: %w", err)
	}

	doc := *tpl
	doc.APIVersion = model.APIVersionV1
	doc.Kind = model.KindAgent
	now := time.Now().UTC()
	doc.Metadata.CreatedAt = now
	doc.Metadata.UpdatedAt = now
	doc.Metadata.FSMState = model.StateCreated
	doc.Spec.Messages = append([]model.Message(nil), tpl.Spec.Messages...)

	if initialPrompt != "" {
		doc.Spec.Messages = append(doc.Spec.Messages, model.Message{
			Timestamp: now,
			Role:      model.RoleUser,
			Content:   initialPrompt,
		})
		doc.Metadata.FSMState = model.StatePending
	}

	rendered, err := RenderSystemPrompt(doc.Spec.SystemPrompt)
	if err != nil {
		return "", err
	}
	doc.Spec.SystemPrompt = rendered

	if err := s.Save(id, &doc); err != nil {
		return "", err
	}
	return id, nil
}

// Fork implements fork(): copies an existing session's document under a
// fresh id, validating apiVersion/kind, and optionally pushing a new user
// message (§4.1).
func (s *Store) Fork(sourceID string, prompt string) (string, error) {
	src, err := s.Load(sourceID)
	if err != nil {
		return "", err
	}
	if src.APIVersion != model.APIVersionV1 || src.Kind != model.KindAgent {
		return "", fmt.Errorf("%w: source %q has apiVersion=%q kind=%q", ErrBadAPIVersion, sourceID, src.APIVersion, src.Kind)
	}

	id, err := s.counter.Allocate()
	if err != nil {
		return "", fmt.Errorf("sessionstore: allocate id: %w", err)
	}

	clone := *src
	clone.Spec.Messages = append([]model.Message(nil), src.Spec.Messages...)
	now := time.Now().UTC()
	clone.Metadata.CreatedAt = now
	clone.Metadata.UpdatedAt = now

	if prompt != "" {
		clone.Spec.Messages = append(clone.Spec.Messages, model.Message{
			Timestamp: now,
			Role:      model.RoleUser,
			Content:   prompt,
		})
		clone.Metadata.FSMState = model.StatePending
	}

	if err := s.Save(id, &clone); err != nil {
		return "", err
	}
	return id, nil
}

// Push appends a user message and transitions the FSM from terminal/idle
// states into pending (§4.1 push).
func (s *Store) Push(id string, prompt string) error {
	if err := s.locks.Lock(id); err != nil {
		return err
	}
	defer s.locks.Unlock(id)

	doc, err := s.Load(id)
	if err != nil {
		return err
	}
	doc.Spec.Messages = append(doc.Spec.Messages, model.Message{
		Timestamp: time.Now().UTC(),
		Role:      model.RoleUser,
		Content:   prompt,
	})
	if doc.Metadata.FSMState == "" || doc.Metadata.FSMState.Terminal() ||
		doc.Metadata.FSMState == model.StateCreated || doc.Metadata.FSMState == model.StateFailed {
		doc.Metadata.FSMState = model.StatePending
	}
	return s.saveLocked(id, doc)
}

// AppendMessage appends any message kind under the session's write lock.
// Used by the FSM engine to record assistant/tool messages.
func (s *Store) AppendMessage(id string, msg model.Message) error {
	if err := s.locks.Lock(id); err != nil {
		return err
	}
	defer s.locks.Unlock(id)

	doc, err := s.Load(id)
	if err != nil {
		return err
	}
	doc.Spec.Messages = append(doc.Spec.Messages, msg)
	return s.saveLocked(id, doc)
}

// SetFSMState persists the FSM projection for crash recovery (§4.1).
func (s *Store) SetFSMState(id string, state model.FSMState, data map[string]any) error {
	if err := s.locks.Lock(id); err != nil {
		return err
	}
	defer s.locks.Unlock(id)

	doc, err := s.Load(id)
	if err != nil {
		return err
	}
	doc.Metadata.FSMState = state
	doc.Metadata.FSMStateData = data
	return s.saveLocked(id, doc)
}

// UpdateLastRead stores a reader's watermark timestamp.
func (s *Store) UpdateLastRead(id string, ts time.Time) error {
	if err := s.locks.Lock(id); err != nil {
		return err
	}
	defer s.locks.Unlock(id)

	doc, err := s.Load(id)
	if err != nil {
		return err
	}
	doc.Metadata.LastRead = ts
	return s.saveLocked(id, doc)
}

// GetLastRead returns the reader watermark.
func (s *Store) GetLastRead(id string) (time.Time, error) {
	doc, err := s.Load(id)
	if err != nil {
		return time.Time{}, err
	}
	return doc.Metadata.LastRead, nil
}

// List enumerates persisted sessions with a lightweight summary (§4.1).
func (s *Store) List() ([]model.Summary, error) {
	entries, err := os.ReadDir(s.root.SessionsDir())
	if err != nil {
		return nil, err
	}
	var out []model.Summary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 6 || name[len(name)-5:] != ".yaml" {
			continue
		}
		id := name[:len(name)-5]
		doc, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session during list", "id", id, "error", err)
			continue
		}
		var preview string
		if n := len(doc.Spec.Messages); n > 0 {
			preview = doc.Spec.Messages[n-1].Content
		}
		out = append(out, model.Summary{
			ID:           id,
			State:        doc.Metadata.FSMState,
			Name:         doc.Metadata.Name,
			Model:        doc.Metadata.Model,
			LastMessage:  preview,
			MessageCount: len(doc.Spec.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecoverCrashedFSMStates implements the crash-recovery rule of §4.7: for
// every persisted session whose last message is a user message and whose
// state is created or success, promote the state to pending.
func (s *Store) RecoverCrashedFSMStates() error {
	summaries, err := s.List()
	if err != nil {
		return err
	}
	for _, summary := range summaries {
		doc, err := s.Load(summary.ID)
		if err != nil {
			continue
		}
		if len(doc.Spec.Messages) == 0 {
			continue
		}
		last := doc.Spec.Messages[len(doc.Spec.Messages)-1]
		if last.Role != model.RoleUser {
			continue
		}
		if doc.Metadata.FSMState != model.StateCreated && doc.Metadata.FSMState != model.StateSuccess {
			continue
		}
		if err := s.SetFSMState(summary.ID, model.StatePending, doc.Metadata.FSMStateData); err != nil {
			s.logger.Warn("failed to recover fsm state", "id", summary.ID, "error", err)
		}
	}
	return nil
}
