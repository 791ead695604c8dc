package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title>Abacus</title><script>track()</script></head>
<body>
	<h1>Senior Path</h1>
	<ul><li>Level 1A</li><li>Level 1B</li></ul>
	<a href="/profile">Profile</a>
</body></html>`

func TestRender(t *testing.T) {
	w := NewWriter()

	md, err := w.Render(page, "http://localhost:3000")
	require.NoError(t, err)

	assert.Contains(t, md, "# Senior Path")
	assert.Contains(t, md, "Level 1A")
	assert.Contains(t, md, "/profile")
	assert.NotContains(t, md, "track()")
}

func TestWrite_CreatesParentDirs(t *testing.T) {
	w := NewWriter()
	path := filepath.Join(t.TempDir(), "verification", "nested", "reloaded.md")

	require.NoError(t, w.Write(path, page, "http://localhost:3000"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Level 1B")
}
