package m3u

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCountsEntries(t *testing.T) {
	doc := "#EXTINF:-1,One\nhttp://a/1.ts\n#EXTINF:-1,Two\nhttp://a/2.ts\n"
	s := Compute(doc)
	assert.Equal(t, 2, s.Entries)
}

func TestComputeEntryMarkerIsCaseInsensitive(t *testing.T) {
	doc := "#extinf:-1,One\n#ExtInf:-1,Two"
	assert.Equal(t, 2, Compute(doc).Entries)
}

func TestComputeEntryMarkerOnlyAtLineStart(t *testing.T) {
	doc := "x #EXTINF:-1,One\n#EXTINF:-1,Two"
	assert.Equal(t, 1, Compute(doc).Entries)
}

func TestComputeDeduplicatesGroups(t *testing.T) {
	doc := `#EXTINF:-1 group-title="Sports",One
#EXTINF:-1 group-title="Sports",Two`
	assert.Equal(t, 1, Compute(doc).Groups)

	doc = `#EXTINF:-1 group-title="Sports",One
#EXTINF:-1 group-title="News",Two`
	assert.Equal(t, 2, Compute(doc).Groups)
}

func TestComputeGroupAttributeNameCaseInsensitive(t *testing.T) {
	doc := `#EXTINF:-1 GROUP-TITLE="Sports",One`
	assert.Equal(t, 1, Compute(doc).Groups)
}

func TestComputeGroupValuesCaseSensitive(t *testing.T) {
	doc := `#EXTINF:-1 group-title="Sports",One
#EXTINF:-1 group-title="sports",Two`
	assert.Equal(t, 2, Compute(doc).Groups)
}

func TestComputeLinesAndSize(t *testing.T) {
	s := Compute("a\nb\nc")
	assert.Equal(t, 3, s.Lines)
	assert.Equal(t, 5, s.SizeBytes)

	// Trailing newline yields one extra (empty) segment, plain split semantics.
	assert.Equal(t, 4, Compute("a\nb\nc\n").Lines)

	// Size is the UTF-8 byte length, not the rune count.
	assert.Equal(t, 4, Compute("héllo"[:4]).SizeBytes)
	assert.Equal(t, 6, Compute("héllo").SizeBytes)
}

func TestComputeEmptyDocument(t *testing.T) {
	s := Compute("")
	assert.Equal(t, 0, s.Entries)
	assert.Equal(t, 0, s.Groups)
	assert.Equal(t, 1, s.Lines)
	assert.Equal(t, 0, s.SizeBytes)
}
