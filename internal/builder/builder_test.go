package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhyrom-forks/BunnyPlugins/internal/scheduler"
)

func TestNewExecBuilderRequiresCommand(t *testing.T) {
	_, err := NewExecBuilder(nil)
	assert.Error(t, err)
}

func TestExecBuilderSuccess(t *testing.T) {
	b, err := NewExecBuilder([]string{"sh", "-c", `test "$BUNNY_PLUGIN" = freeze`})
	require.NoError(t, err)

	err = b.Build(context.Background(), scheduler.Request{Name: "freeze"})
	assert.NoError(t, err)
}

func TestExecBuilderFailureCarriesOutput(t *testing.T) {
	b, err := NewExecBuilder([]string{"sh", "-c", "echo unexpected token; exit 3"})
	require.NoError(t, err)

	err = b.Build(context.Background(), scheduler.Request{Name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestDiscoverFiltersByManifest(t *testing.T) {
	root := t.TempDir()
	mk := func(name string, withManifest bool) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
		if withManifest {
			require.NoError(t, os.WriteFile(filepath.Join(root, name, "manifest.json"), []byte("{}"), 0o644))
		}
	}
	mk("freeze", true)
	mk("no-track", true)
	mk("scratch", false)
	mk(".git", false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	names, err := Discover(root, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"freeze", "no-track"}, names)
}

func TestDiscoverWithoutManifestAcceptsAllDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))

	names, err := Discover(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestRequests(t *testing.T) {
	reqs := Requests([]string{"freeze"}, "./plugins", "./dist")
	require.Len(t, reqs, 1)
	assert.Equal(t, "freeze", reqs[0].Name)
	assert.Equal(t, filepath.Join("./plugins", "freeze"), reqs[0].SourceDir)
	assert.Equal(t, filepath.Join("./dist", "freeze"), reqs[0].OutputDir)
}
