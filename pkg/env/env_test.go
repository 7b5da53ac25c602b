package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypedVariables(t *testing.T) {
	t.Setenv("MANGAFLOW_TEST_INT", "42")
	t.Setenv("MANGAFLOW_TEST_FLOAT", "1.45")
	t.Setenv("MANGAFLOW_TEST_BOOL", "true")
	t.Setenv("MANGAFLOW_TEST_DURATION", "1500ms")
	t.Setenv("MANGAFLOW_TEST_BAD", "forty")

	i, err := IntVariable("MANGAFLOW_TEST_INT", 1)
	require.NoError(t, err)
	require.Equal(t, 42, i)

	f, err := FloatVariable("MANGAFLOW_TEST_FLOAT", 0)
	require.NoError(t, err)
	require.InDelta(t, 1.45, f, 1e-9)

	b, err := BoolVariable("MANGAFLOW_TEST_BOOL", false)
	require.NoError(t, err)
	require.True(t, b)

	d, err := DurationVariable("MANGAFLOW_TEST_DURATION", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	_, err = IntVariable("MANGAFLOW_TEST_BAD", 1)
	require.Error(t, err)

	i, err = IntVariable("MANGAFLOW_TEST_UNSET", 7)
	require.NoError(t, err)
	require.Equal(t, 7, i)

	require.Equal(t, "fallback", StringVariable("MANGAFLOW_TEST_UNSET", "fallback"))
}

func TestRequiredStringVariablePanics(t *testing.T) {
	require.Panics(t, func() { RequiredStringVariable("MANGAFLOW_TEST_UNSET") })

	t.Setenv("MANGAFLOW_TEST_SET", "value")
	require.Equal(t, "value", RequiredStringVariable("MANGAFLOW_TEST_SET"))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MANGAFLOW_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MANGAFLOW_TEST_DOTENV") })

	Load(path)
	require.Equal(t, "loaded", os.Getenv("MANGAFLOW_TEST_DOTENV"))
}
