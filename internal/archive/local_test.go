package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocal_Put_WritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := l.Put(context.Background(), "feeds/src-1/run-1.xml", "application/xml", []byte("<rss/>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "feeds", "src-1", "run-1.xml"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "feeds", "src-1", "run-1.xml"))
	require.NoError(t, err)
	require.Equal(t, "<rss/>", string(data))
}

func TestLocal_Put_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"../outside.xml", "/abs/path.xml", "."} {
		_, err := l.Put(context.Background(), path, "", []byte("x"))
		require.Error(t, err, "path %q", path)
	}
}

func TestNewLocal_RequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocal("  ")
	require.Error(t, err)
}
