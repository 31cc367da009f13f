package tap

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	SchemaMessage = "SCHEMA"
	RecordMessage = "RECORD"
	StateMessage  = "STATE"
)

// Message is one line of the Singer output.
type Message struct {
	Type               string     `json:"type"`
	Stream             string     `json:"stream,omitempty"`
	Record             Record     `json:"record,omitempty"`
	TimeExtracted      *time.Time `json:"time_extracted,omitempty"`
	Schema             any        `json:"schema,omitempty"`
	KeyProperties      []string   `json:"key_properties,omitempty"`
	BookmarkProperties []string   `json:"bookmark_properties,omitempty"`
	Value              any        `json:"value,omitempty"`
}

// Emitter receives the output of a sync.
type Emitter interface {
	WriteSchema(def StreamDefinition, schema map[string]any) error
	WriteRecord(stream string, record Record) error
	WriteState(state *State) error
}

// SingerWriter writes Singer messages as JSON lines.
type SingerWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewSingerWriter(w io.Writer) *SingerWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &SingerWriter{enc: enc, now: time.Now}
}

func (w *SingerWriter) WriteSchema(def StreamDefinition, schema map[string]any) error {
	m := Message{
		Type:          SchemaMessage,
		Stream:        def.Name,
		Schema:        schema,
		KeyProperties: def.PrimaryKeys,
	}
	if def.ReplicationKey != "" {
		m.BookmarkProperties = []string{def.ReplicationKey}
	}
	return w.write(m)
}

func (w *SingerWriter) WriteRecord(stream string, record Record) error {
	extracted := w.now().UTC()
	return w.write(Message{
		Type:          RecordMessage,
		Stream:        stream,
		Record:        record,
		TimeExtracted: &extracted,
	})
}

func (w *SingerWriter) WriteState(state *State) error {
	return w.write(Message{
		Type:  StateMessage,
		Value: state.Value(),
	})
}

func (w *SingerWriter) write(m Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(m); err != nil {
		return fmt.Errorf("failed to write %s message %w", m.Type, err)
	}
	return nil
}
