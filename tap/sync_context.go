package tap

import "slices"

// SyncContext holds shared sync configuration for one run.
// It is immutable after construction.
type SyncContext struct {
	Config     Config
	ConfigPath string

	// RecordRequests writes every HTTP exchange to RecordDir for offline replay.
	RecordRequests bool
	RecordDir      string

	// Selected limits which streams emit records. Empty means every stream.
	Selected []string
}

// IsSelected reports whether records of the named stream are emitted.
func (s *SyncContext) IsSelected(stream string) bool {
	if len(s.Selected) == 0 {
		return true
	}
	return slices.Contains(s.Selected, stream)
}
