package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		fragment string
		want     int
	}{
		{
			name:     "single match",
			html:     `<html><body><h2>Level 1A</h2></body></html>`,
			fragment: "Level 1A",
			want:     1,
		},
		{
			name:     "innermost element only",
			html:     `<body><ul><li><span>Level 1A</span></li></ul></body>`,
			fragment: "Level 1A",
			want:     1,
		},
		{
			name:     "two separate elements",
			html:     `<body><div>Level 1A</div><div>Level 1A review</div></body>`,
			fragment: "Level 1A",
			want:     2,
		},
		{
			name:     "case insensitive",
			html:     `<body><p>LEVEL 1a</p></body>`,
			fragment: "Level 1A",
			want:     1,
		},
		{
			name:     "whitespace normalised",
			html:     "<body><p>Level\n\t   1A</p></body>",
			fragment: "Level 1A",
			want:     1,
		},
		{
			name:     "split across inline children",
			html:     `<body><p><b>Level</b> 1A</p></body>`,
			fragment: "Level 1A",
			want:     1,
		},
		{
			name:     "absent",
			html:     `<body><h2>Level 1</h2><p>Junior path</p></body>`,
			fragment: "Level 1A",
			want:     0,
		},
		{
			name:     "script content ignored",
			html:     `<body><script>const label = "Level 1A";</script><p>Junior</p></body>`,
			fragment: "Level 1A",
			want:     0,
		},
		{
			name:     "title ignored",
			html:     `<html><head><title>Level 1A</title></head><body></body></html>`,
			fragment: "Level 1A",
			want:     0,
		},
		{
			name:     "empty fragment",
			html:     `<body><p>anything</p></body>`,
			fragment: "   ",
			want:     0,
		},
		{
			name:     "block siblings do not merge",
			html:     `<body><p>Level</p><p>1A</p></body>`,
			fragment: "Level1A",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Count(tt.html, tt.fragment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContains(t *testing.T) {
	ok, err := Contains(`<body><button>Senior</button></body>`, "senior")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(`<body><button>Junior</button></body>`, "senior")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVisibleText(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
		<h1>Abacus</h1>
		<p>Path: <b>Senior</b></p>
		<script>ignored()</script>
		<ul><li>Level 1A</li><li>Level 1B</li></ul>
	</body></html>`

	got, err := VisibleText(html)
	require.NoError(t, err)
	assert.Equal(t, "Abacus Path: Senior Level 1A Level 1B", got)
}
