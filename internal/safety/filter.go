// Package safety guards the station's control surface. It decides which
// sensor categories may be shed under memory pressure and protects lifecycle
// tools with confirmation tokens and an audit trail.
package safety

import "path/filepath"

// Filter selects sensor types by glob pattern (as understood by
// filepath.Match).
//
// Rules:
//   - A type is shed only when it matches at least one shed pattern.
//   - The protect list always wins over the shed list.
//   - An empty shed list sheds nothing.
type Filter struct {
	shed    []string
	protect []string
}

// NewFilter constructs a Filter from shed and protect pattern slices. Either
// may be nil or empty. The slices are copied.
func NewFilter(shed, protect []string) *Filter {
	return &Filter{
		shed:    append([]string(nil), shed...),
		protect: append([]string(nil), protect...),
	}
}

// Sheds reports whether sensors of sensorType should be deactivated while
// memory is critical. A nil Filter sheds nothing.
func (f *Filter) Sheds(sensorType string) bool {
	if f == nil {
		return false
	}
	for _, pattern := range f.protect {
		if matchGlob(pattern, sensorType) {
			return false
		}
	}
	for _, pattern := range f.shed {
		if matchGlob(pattern, sensorType) {
			return true
		}
	}
	return false
}

// Patterns returns copies of the shed and protect lists.
func (f *Filter) Patterns() (shed, protect []string) {
	if f == nil {
		return nil, nil
	}
	return append([]string(nil), f.shed...), append([]string(nil), f.protect...)
}

// matchGlob returns true when name matches pattern. Malformed patterns never
// match.
func matchGlob(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
