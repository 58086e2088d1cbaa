package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "dormd", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(ServeCmd(), ExportCmd(), ImportCmd(), AllocateAutoCmd())
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %q
  log_level: silent
log:
  level: error
`, filepath.Join(dir, "dorm.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCLI_ImportExportAllocate(t *testing.T) {
	cfgPath := writeConfig(t)

	snapshot := filepath.Join(t.TempDir(), "structure.yaml")
	require.NoError(t, os.WriteFile(snapshot, []byte(`
dormitories:
  - name: North
    address: 1 Campus Rd
    rooms:
      - floor_number: 1
        room_number: "101"
        capacity: 2
`), 0o600))

	out, err := run(t, "import", "--config", cfgPath, "--file", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "imported structure.yaml")
	assert.Regexp(t, `Rooms\s+1\s+0\s+0`, out)

	out, err = run(t, "export", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"dormitories":[{"name":"North","address":"1 Campus Rd","rooms":[{"floor_number":1,"room_number":"101","capacity":2}]}]}`, out)

	exported := filepath.Join(t.TempDir(), "out.yaml")
	_, err = run(t, "export", "--config", cfgPath, "--format", "yaml", "-o", exported)
	require.NoError(t, err)
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "name: North")

	out, err = run(t, "allocate-auto", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "allocated: 0\nskipped: 0\n", out)
}

func TestCLI_Errors(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, "import", "--config", cfgPath)
	assert.Error(t, err, "--file is required")

	_, err = run(t, "export", "--config", cfgPath, "--format", "xml")
	assert.Error(t, err)

	_, err = run(t, "export", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config path must exist")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"dormitories":[{"name":""}]}`), 0o600))
	_, err = run(t, "import", "--config", cfgPath, "--file", bad)
	assert.EqualError(t, err, "dormitories[0]: name is required")
}
