package eventbus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// ErrChannelNotFound is returned by operations on an unknown channel.
var ErrChannelNotFound = errors.New("eventbus: channel not found")

// ErrChannelExists is returned by Create when the channel already exists.
var ErrChannelExists = errors.New("eventbus: channel already exists")

// ChannelStore persists named channel documents under
// <root>/agents/channels, one YAML file per channel (§4.6, §6.1).
type ChannelStore struct {
	mu   sync.Mutex
	root *workspace.Root
}

// NewChannelStore builds a ChannelStore rooted at root.
func NewChannelStore(root *workspace.Root) *ChannelStore {
	return &ChannelStore{root: root}
}

// Create persists a new channel. It fails if one by that name already
// exists.
func (s *ChannelStore) Create(name, description string) (*model.ChannelDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.root.ChannelPath(name)
	if workspace.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, name)
	}
	doc := model.NewChannel(name, description)
	if err := workspace.WriteYAMLAtomic(path, doc); err != nil {
		return nil, fmt.Errorf("eventbus: create channel %q: %w", name, err)
	}
	return doc, nil
}

// Get loads a channel by name.
func (s *ChannelStore) Get(name string) (*model.ChannelDocument, error) {
	path := s.root.ChannelPath(name)
	var doc model.ChannelDocument
	if err := workspace.ReadYAML(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		return nil, err
	}
	return &doc, nil
}

// Delete removes a channel's persisted document.
func (s *ChannelStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.root.ChannelPath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		return err
	}
	return nil
}

// AddSession adds a session id to a channel's member list, if not already
// present.
func (s *ChannelStore) AddSession(channel, sessionID string) error {
	return s.mutate(channel, func(doc *model.ChannelDocument) {
		for _, id := range doc.Spec.AgentSessions {
			if id == sessionID {
				return
			}
		}
		doc.Spec.AgentSessions = append(doc.Spec.AgentSessions, sessionID)
	})
}

// RemoveSession removes a session id from a channel's member list.
func (s *ChannelStore) RemoveSession(channel, sessionID string) error {
	return s.mutate(channel, func(doc *model.ChannelDocument) {
		kept := doc.Spec.AgentSessions[:0]
		for _, id := range doc.Spec.AgentSessions {
			if id != sessionID {
				kept = append(kept, id)
			}
		}
		doc.Spec.AgentSessions = kept
	})
}

func (s *ChannelStore) mutate(name string, fn func(*model.ChannelDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.root.ChannelPath(name)
	var doc model.ChannelDocument
	if err := workspace.ReadYAML(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		return err
	}
	fn(&doc)
	doc.Metadata.UpdatedAt = time.Now().UTC()
	return workspace.WriteYAMLAtomic(path, &doc)
}

// List returns every persisted channel, ordered by name.
func (s *ChannelStore) List() ([]model.ChannelDocument, error) {
	dir := s.root.ChannelsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []model.ChannelDocument
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		var doc model.ChannelDocument
		if err := workspace.ReadYAML(filepath.Join(dir, entry.Name()), &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Name < out[j].Metadata.Name })
	return out, nil
}
