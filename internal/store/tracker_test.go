package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordAndQuery(t *testing.T) {
	tr := NewTracker()
	tr.Record("doc:a", "fragment:x")
	tr.Record("doc:b", "fragment:x")
	tr.Record("doc:c", "fragment:y")

	assert.Equal(t, []string{"doc:a", "doc:b"}, tr.DependentsOf("fragment:x"))
	assert.Equal(t, []string{"doc:c"}, tr.DependentsOf("fragment:y"))
	assert.Empty(t, tr.DependentsOf("fragment:z"))
}

func TestTrackerBeginClearsStaleEdges(t *testing.T) {
	tr := NewTracker()
	tr.Record("doc:a", "fragment:x")
	tr.Record("doc:a", "fragment:y")

	// Reprocessing doc:a now records only y; the x edge must not survive.
	tr.Begin("doc:a")
	tr.Record("doc:a", "fragment:y")

	assert.Empty(t, tr.DependentsOf("fragment:x"))
	assert.Equal(t, []string{"doc:a"}, tr.DependentsOf("fragment:y"))
}

func TestTrackerRecordIsIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.Record("doc:a", "fragment:x")
	tr.Record("doc:a", "fragment:x")
	assert.Equal(t, []string{"doc:a"}, tr.DependentsOf("fragment:x"))
}
