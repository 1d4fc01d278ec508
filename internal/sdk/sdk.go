// Package sdk defines the closed set of client SDK identifiers that
// documentation content can be scoped to. The universe is not hardcoded: it is
// declared once in the navigation manifest and threaded through the pipeline.
package sdk

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// SDK is a single client-integration identifier (e.g. "go", "python").
type SDK string

// Universe is the fixed enumeration of valid SDK identifiers for one corpus.
// Order is the declaration order from the manifest and is used for
// deterministic variant emission.
type Universe struct {
	ordered []SDK
	members sets.Set[SDK]
}

// NewUniverse builds a universe from manifest-declared identifiers.
// Identifiers are normalized to lower case; duplicates and empty entries are
// rejected because a sloppy universe makes every downstream scope check
// unreliable.
func NewUniverse(ids []string) (*Universe, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("manifest declares no sdk identifiers")
	}
	u := &Universe{
		ordered: make([]SDK, 0, len(ids)),
		members: sets.New[SDK](),
	}
	for _, raw := range ids {
		id := SDK(strings.ToLower(strings.TrimSpace(raw)))
		if id == "" {
			return nil, fmt.Errorf("empty sdk identifier in manifest")
		}
		if u.members.Has(id) {
			return nil, fmt.Errorf("duplicate sdk identifier %q in manifest", id)
		}
		u.members.Add(id)
		u.ordered = append(u.ordered, id)
	}
	return u, nil
}

// Contains reports whether id is a recognized SDK.
func (u *Universe) Contains(id SDK) bool { return u.members.Has(id) }

// Size returns the number of SDKs in the universe.
func (u *Universe) Size() int { return len(u.ordered) }

// All returns the SDKs in declaration order. Callers must not mutate the
// returned slice.
func (u *Universe) All() []SDK { return u.ordered }

// Members returns the universe as a set. Callers must not mutate it.
func (u *Universe) Members() sets.Set[SDK] { return u.members }

// Covers reports whether s contains every SDK in the universe.
func (u *Universe) Covers(s sets.Set[SDK]) bool {
	return u.members.SubsetOf(s)
}

// ParseList parses a comma/space separated SDK list as found in frontmatter
// and conditional-block filters. Unknown identifiers are returned separately
// so callers can decide between rejection and diagnostics.
func (u *Universe) ParseList(raw []string) (known sets.Set[SDK], unknown []string) {
	known = sets.New[SDK]()
	for _, item := range raw {
		for _, field := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			id := SDK(strings.ToLower(strings.TrimSpace(field)))
			if id == "" {
				continue
			}
			if u.Contains(id) {
				known.Add(id)
			} else {
				unknown = append(unknown, string(id))
			}
		}
	}
	return known, unknown
}

// Format renders a set of SDKs as a stable, human-readable list.
func Format(s sets.Set[SDK]) string {
	if s == nil {
		return "all"
	}
	ids := sets.Sorted(s)
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	return strings.Join(strs, ",")
}
