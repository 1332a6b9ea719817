package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func fixture(name string) string {
	return filepath.Join("testdata", name+".yaml")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"build", "check", "dump", "run"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "build", "--config", dir, "-o", "dist", "--listing", fixture("arith"))
	require.NoError(t, err)

	wasmPath := filepath.Join(dir, "dist", "arith.wasm")
	assert.Contains(t, out, "wrote "+wasmPath)
	assert.Contains(t, out, "2 functions")
	assert.FileExists(t, wasmPath)
	assert.FileExists(t, filepath.Join(dir, "dist", "arith.lst"))
}

func TestBuildCommandUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := "[output]\ndir = \"gen\"\nlisting = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stackgen.toml"), []byte(cfg), 0644))

	_, _, err := execute(t, "build", "--config", dir, fixture("arith"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "gen", "arith.wasm"))
	assert.FileExists(t, filepath.Join(dir, "gen", "arith.lst"))
}

func TestBuildCommandRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stackgen.toml"), []byte("[module]\npages = 2\n"), 0644))

	_, _, err := execute(t, "build", "--config", dir, fixture("arith"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestBuildCommandReportsDiagnostics(t *testing.T) {
	_, stderr, err := execute(t, "build", "--config", t.TempDir(), fixture("broken"))
	require.Error(t, err)
	assert.Contains(t, stderr, "i32.addd")
}

func TestBuildCommandRequiresFile(t *testing.T) {
	_, _, err := execute(t, "build")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	out, _, err := execute(t, "check", "--config", t.TempDir(), fixture("arith"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok (0 warning(s))")

	out, _, err = execute(t, "check", "--config", t.TempDir(), fixture("broken"))
	require.Error(t, err)
	assert.Contains(t, out, "error[")
	assert.Contains(t, err.Error(), "error(s)")
}

func TestDumpCommand(t *testing.T) {
	out, _, err := execute(t, "dump", "--config", t.TempDir(), fixture("arith"))
	require.NoError(t, err)
	assert.Contains(t, out, "func[0] log")
	assert.Contains(t, out, `func[1] diff (type 1) (export "diff")`)
	assert.Contains(t, out, "local.tee 3")
}

func TestDumpCommandSingleFunction(t *testing.T) {
	out, _, err := execute(t, "dump", "--config", t.TempDir(), "--function", "diff", fixture("arith"))
	require.NoError(t, err)
	assert.Contains(t, out, "func[1] diff")
	assert.NotContains(t, out, "func[0] log")

	_, _, err = execute(t, "dump", "--config", t.TempDir(), "-f", "nope", fixture("arith"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no function "nope"`)
}

func TestRunCommand(t *testing.T) {
	out, _, err := execute(t, "run", "--config", t.TempDir(), fixture("arith"), "diff", "5", "7")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestRunCommandErrors(t *testing.T) {
	_, _, err := execute(t, "run", "--config", t.TempDir(), fixture("arith"))
	assert.Error(t, err)

	_, _, err = execute(t, "run", "--config", t.TempDir(), fixture("arith"), "diff", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes 2 argument(s)")
}

func TestVerboseLogsToStderr(t *testing.T) {
	_, stderr, err := execute(t, "dump", "-v", "--config", t.TempDir(), fixture("arith"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "msg=spill")
}
