package ops

import (
	"maps"
	"slices"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
)

// Builtin returns the operations every client understands.
//
// update applies each body entry as a dotted path assignment:
//
//	{"preferences.timezoneOffset": 240, "stats.gp": 12}
func Builtin() Catalog {
	return Catalog{
		"update": Update,
	}
}

// Update sets every dotted path in req.Body. Paths are applied in sorted
// order so the result does not depend on map iteration.
func Update(st *state.State, req ir.Request) error {
	if len(req.Body) == 0 {
		return NewError(400, "update requires a body")
	}
	for _, path := range slices.Sorted(maps.Keys(req.Body)) {
		if err := st.SetPath(path, req.Body[path]); err != nil {
			return NewError(400, "%v", err)
		}
	}
	return nil
}

// Merge returns a catalog holding the entries of all catalogs. Later
// catalogs win on name clashes.
func Merge(catalogs ...Catalog) Catalog {
	out := Catalog{}
	for _, c := range catalogs {
		maps.Copy(out, c)
	}
	return out
}
