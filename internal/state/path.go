package state

import (
	"fmt"
	"strings"
)

// transientFields never reach storage and are ignored on merge.
var transientFields = []string{"ops", "fns", "_wrapped"}

func isTransient(key string) bool {
	for _, f := range transientFields {
		if f == key {
			return true
		}
	}
	return false
}

// GetPath returns a copy of the value at a dotted path such as
// "preferences.timezoneOffset".
func (s *State) GetPath(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := strings.Split(path, ".")
	var cur any = s.fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return deepCopy(cur), true
}

// SetPath writes a dotted path, creating intermediate objects as needed.
// Fails if an intermediate segment holds a non-object value.
func (s *State) SetPath(path string, value any) error {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return s.Set(path, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.fields
	for i, p := range parts[:len(parts)-1] {
		if p == "" {
			return fmt.Errorf("path %q: empty segment", path)
		}
		next, ok := cur[p]
		if !ok || next == nil {
			child := make(map[string]any)
			cur[p] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %q: %s is %T, not an object", path, strings.Join(parts[:i+1], "."), next)
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
