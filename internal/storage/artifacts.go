package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrArtifactNotFound is returned by Get for an unknown (run, name) key.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrDuplicateArtifact is returned by Put when the key is already written.
	ErrDuplicateArtifact = errors.New("artifact already exists")
)

// Artifact is a named output handed from one job to later jobs in the same run.
type Artifact struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`     // directory on disk
	Producer string    `json:"producer"` // job that wrote it
	Digest   string    `json:"digest,omitempty"`
	Created  time.Time `json:"created"`
}

// ArtifactStore holds artifacts for every active run, keyed by run id.
// Each (run, name) slot can be written once.
type ArtifactStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]Artifact
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{runs: make(map[string]map[string]Artifact)}
}

// Put stores an artifact for the run. The first write of a key wins.
func (s *ArtifactStore) Put(runID, name string, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, ok := s.runs[runID]
	if !ok {
		slots = make(map[string]Artifact)
		s.runs[runID] = slots
	}
	if _, exists := slots[name]; exists {
		return fmt.Errorf("run %s: %q: %w", runID, name, ErrDuplicateArtifact)
	}
	a.Name = name
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	slots[name] = a
	return nil
}

// Get returns the artifact stored under name for the run.
func (s *ArtifactStore) Get(runID, name string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.runs[runID][name]
	if !ok {
		return Artifact{}, fmt.Errorf("run %s: %q: %w", runID, name, ErrArtifactNotFound)
	}
	return a, nil
}

// List returns the run's artifacts sorted by name.
func (s *ArtifactStore) List(runID string) []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.runs[runID])
}

// Discard drops every artifact of the run.
func (s *ArtifactStore) Discard(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

func sorted(slots map[string]Artifact) []Artifact {
	out := make([]Artifact, 0, len(slots))
	for _, a := range slots {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
