package content

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks left over after NFD decomposition, so
// "Résumé" slugs to "resume".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts heading text to a stable anchor id: diacritics folded,
// lower-cased, non-alphanumeric runs collapsed to single dashes.
func Slugify(text string) string {
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// AnchorAllocator assigns unique anchor ids within one document, appending
// -N counters to repeated slugs. Explicit ids participate in the same
// namespace so an explicit id and a generated slug cannot silently collide.
type AnchorAllocator struct {
	seen map[string]int
}

// NewAnchorAllocator creates an empty allocator.
func NewAnchorAllocator() *AnchorAllocator {
	return &AnchorAllocator{seen: make(map[string]int)}
}

// Claim reserves id verbatim, reporting whether it was already taken.
func (a *AnchorAllocator) Claim(id string) (taken bool) {
	n := a.seen[id]
	a.seen[id] = n + 1
	return n > 0
}

// Allocate returns base if unused, else base-2, base-3, ...
func (a *AnchorAllocator) Allocate(base string) string {
	if base == "" {
		base = "section"
	}
	n := a.seen[base]
	a.seen[base] = n + 1
	if n == 0 {
		return base
	}
	// The counter suffix itself must not collide with a later literal id.
	for {
		candidate := base + "-" + strconv.Itoa(n+1)
		if a.seen[candidate] == 0 {
			a.seen[candidate] = 1
			return candidate
		}
		n++
		a.seen[base] = n + 1
	}
}
