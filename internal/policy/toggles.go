package policy

// ToggleSource records where a knob's effective value came from.
type ToggleSource string

const (
	ToggleSourceDefault       ToggleSource = "default"
	ToggleSourceConfiguration ToggleSource = "configuration"
	ToggleSourceOverride      ToggleSource = "override"
)

// ToggleValue is one knob's effective value and its source.
type ToggleValue struct {
	Value  bool
	Source ToggleSource
}

// TighteningToggleSnapshot records, for every tightening knob, the effective
// value and source (default | configuration | override) as an ordered map
// (spec §4.4).
type TighteningToggleSnapshot struct {
	order  []string
	values map[string]ToggleValue
}

// NewToggleSnapshot returns an empty, ready-to-use snapshot.
func NewToggleSnapshot() TighteningToggleSnapshot {
	return TighteningToggleSnapshot{values: map[string]ToggleValue{}}
}

// Set records key's effective value and source, overwriting any prior entry
// for the same key but preserving first-seen ordering.
func (s *TighteningToggleSnapshot) Set(key string, value bool, source ToggleSource) {
	if s.values == nil {
		s.values = map[string]ToggleValue{}
	}
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = ToggleValue{Value: value, Source: source}
}

// Get returns key's effective value and whether it was set.
func (s TighteningToggleSnapshot) Get(key string) (ToggleValue, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns toggle keys in first-set order.
func (s TighteningToggleSnapshot) Keys() []string {
	return append([]string(nil), s.order...)
}

// resolve applies default < configuration < override precedence: a
// configuration-sourced value overrides a default, and an override-sourced
// value overrides both. Call once per knob per Decide invocation.
func (s *TighteningToggleSnapshot) resolve(key string, def bool, config *bool, override *bool) bool {
	value, source := def, ToggleSourceDefault
	if config != nil {
		value, source = *config, ToggleSourceConfiguration
	}
	if override != nil {
		value, source = *override, ToggleSourceOverride
	}
	s.Set(key, value, source)
	return value
}
