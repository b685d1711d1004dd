package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutline_Hierarchy(t *testing.T) {
	input := `# Getting Started

Introduction text here.

## Installation

Install steps here.

## Configuration

Config details here.
`
	headings, err := NewOutliner().Outline([]byte(input))
	require.NoError(t, err)
	require.Len(t, headings, 3)

	assert.Equal(t, Heading{Depth: 1, Title: "Getting Started", Path: "# Getting Started"}, headings[0])
	assert.Equal(t, "# Getting Started > ## Installation", headings[1].Path)
	assert.Equal(t, 2, headings[2].Depth)
	assert.Equal(t, "Configuration", headings[2].Title)
}

func TestFirstHeading(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"h1", "# Title\n\nbody", "Title"},
		{"h2 first", "intro\n\n## Section One\n\ntext", "Section One"},
		{"hashtag is not a heading", "#tag only\n\nplain text", ""},
		{"no headings", "just a paragraph", ""},
		{"setext skipped", "Attendees were Ann and Bob\n---\n\n## Actions\n\ntext", "Actions"},
		{"empty", "", ""},
	}
	o := NewOutliner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.FirstHeading([]byte(tt.input)))
		})
	}
}

func TestOutline_MarksSetextHeadings(t *testing.T) {
	input := "Summary line\n===\n\n  ## Indented ATX\n\nbody\n\nAttendees\n---\n"
	headings, err := NewOutliner().Outline([]byte(input))
	require.NoError(t, err)
	require.Len(t, headings, 3)

	assert.Equal(t, "Summary line", headings[0].Title)
	assert.True(t, headings[0].Setext)
	assert.Equal(t, "Indented ATX", headings[1].Title)
	assert.False(t, headings[1].Setext)
	assert.Equal(t, "Attendees", headings[2].Title)
	assert.True(t, headings[2].Setext)
}
