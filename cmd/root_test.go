package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ucli-tools/registry/internal/config"
	"github.com/ucli-tools/registry/internal/registry"
	"github.com/zalando/go-keyring"
)

const cliRegistry = `apps:
  official:
    - name: gits
      repo: github.com/ucli-tools/gits
      version: main
`

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

// resetFlags undoes flag values left over from a previous execute
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, c := range []*cobra.Command{rootCmd, historyCmd} {
		resetFlags(c.Flags())
		resetFlags(c.PersistentFlags())
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return out.String(), err
}

func TestRoot_DryRunJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"sha":"def456789012abcdef0123456789abcdef012345","commit":{"committer":{"date":"2025-03-01T09:30:02Z"},"message":"Add install script"}}]`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliRegistry), 0o644))

	out, err := execute(t, "--registry-file", path, "--api-url", srv.URL, "--dry-run", "--json")
	require.NoError(t, err)

	var decoded struct {
		Summary struct {
			Mode    string `json:"mode"`
			Updated int    `json:"updated"`
			Saved   bool   `json:"saved"`
		} `json:"summary"`
		Outcomes []struct {
			Name    string `json:"name"`
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "dry-run", decoded.Summary.Mode)
	assert.Equal(t, 1, decoded.Summary.Updated)
	assert.False(t, decoded.Summary.Saved)
	require.Len(t, decoded.Outcomes, 1)
	assert.Equal(t, "updated", decoded.Outcomes[0].Status)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cliRegistry, string(data))
}

func TestRoot_MissingRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := execute(t, "--registry-file", path, "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrDocumentLoad)
	assert.Empty(t, out)
}

func TestToken_SetAndClear(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("s3cret\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := execute(t, "token", "set")
	require.NoError(t, err)
	assert.Contains(t, out, "Token stored for https://github.com")

	got, err := keyring.Get(config.KeyringService, "github.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	out, err = execute(t, "token", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Token removed")

	_, err = execute(t, "token", "clear")
	assert.ErrorIs(t, err, config.ErrNoToken)
}

func TestHistory_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, "history", "--history-db="+db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}
