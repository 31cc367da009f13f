package tap

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Bookmark is the replication progress of one stream.
type Bookmark struct {
	ReplicationKey      string `json:"replication_key"`
	ReplicationKeyValue any    `json:"replication_key_value"`
}

// State holds stream bookmarks. Starting values are always read from the state
// the run began with, so one merchant's progress never filters another's records.
type State struct {
	mu        sync.Mutex
	initial   map[string]Bookmark
	bookmarks map[string]Bookmark
	pending   map[string]Bookmark
}

func NewState() *State {
	return &State{
		initial:   make(map[string]Bookmark),
		bookmarks: make(map[string]Bookmark),
		pending:   make(map[string]Bookmark),
	}
}

// ParseState reads a state document. A {"value": {...}} envelope is accepted too.
func ParseState(data []byte) (*State, error) {
	result := NewState()
	if len(data) == 0 {
		return result, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("state is not valid JSON")
	}
	bookmarks := gjson.GetBytes(data, "bookmarks")
	if !bookmarks.Exists() {
		bookmarks = gjson.GetBytes(data, "value.bookmarks")
	}
	if !bookmarks.Exists() {
		return result, nil
	}
	if err := json.Unmarshal([]byte(bookmarks.Raw), &result.initial); err != nil {
		return nil, fmt.Errorf("failed to read bookmarks %w", err)
	}
	maps.Copy(result.bookmarks, result.initial)
	return result, nil
}

func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %w", err)
	}
	return ParseState(data)
}

// StartingValue returns the bookmark the run began with, or startDate when the
// stream has none. It returns nil when neither exists.
func (s *State) StartingValue(stream string, replicationKey string, startDate string) any {
	if replicationKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.initial[stream]; ok && b.ReplicationKey == replicationKey && b.ReplicationKeyValue != nil {
		return b.ReplicationKeyValue
	}
	if startDate != "" {
		return startDate
	}
	return nil
}

// Bookmark returns the current bookmark of stream.
func (s *State) Bookmark(stream string) (Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookmarks[stream]
	return b, ok
}

// SetBookmark advances the bookmark of stream. Values never move backwards.
func (s *State) SetBookmark(stream string, replicationKey string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[stream] = maxBookmark(s.bookmarks[stream], Bookmark{ReplicationKey: replicationKey, ReplicationKeyValue: value})
}

// Track records a replication value seen while a stream context is in flight.
func (s *State) Track(stream string, replicationKey string, value any) {
	if value == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[stream] = maxBookmark(s.pending[stream], Bookmark{ReplicationKey: replicationKey, ReplicationKeyValue: value})
}

// Commit promotes the tracked value of stream once its context completed.
func (s *State) Commit(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[stream]; ok {
		s.bookmarks[stream] = maxBookmark(s.bookmarks[stream], p)
		delete(s.pending, stream)
	}
}

// Discard drops the tracked value of a stream context that failed.
func (s *State) Discard(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, stream)
}

// Value returns the state document written in STATE messages.
func (s *State) Value() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"bookmarks": maps.Clone(s.bookmarks)}
}

func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value())
}

func maxBookmark(current Bookmark, candidate Bookmark) Bookmark {
	if current.ReplicationKeyValue == nil || current.ReplicationKey != candidate.ReplicationKey {
		return candidate
	}
	a, err := NormalizeTimestamp(current.ReplicationKeyValue)
	if err != nil {
		return candidate
	}
	b, err := NormalizeTimestamp(candidate.ReplicationKeyValue)
	if err != nil {
		Logger().Warn("ignoring replication value that is not a timestamp",
			zap.String("replication_key", candidate.ReplicationKey),
			zap.Any("value", candidate.ReplicationKeyValue))
		return current
	}
	if b > a {
		return candidate
	}
	return current
}
