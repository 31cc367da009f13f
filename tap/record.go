package tap

// Record is one flattened row emitted for a stream.
type Record map[string]any

// Mappable provides a common interface for types whose fields can be set and removed.
type Mappable interface {
	GetFields() map[string]any
	SetField(key string, value any)
	DeleteField(key string)
}

func (r Record) GetFields() map[string]any {
	return r
}

func (r Record) SetField(key string, value any) {
	r[key] = value
}

func (r Record) DeleteField(key string) {
	delete(r, key)
}

// MergeContext copies context bindings into fields the destination does not already hold.
// Child records rarely repeat their parent ids, which are part of their primary keys.
func MergeContext(destination Mappable, sctx Context) {
	fields := destination.GetFields()
	for _, b := range sctx {
		if v, exists := fields[b.Key]; exists && v != nil {
			continue
		}
		destination.SetField(b.Key, b.Value)
	}
}
