package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/lock"
	"github.com/adamancini/vsupdater/internal/types"
	"github.com/adamancini/vsupdater/internal/update"
)

// isolate points every XDG directory at a temp dir for the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("VSUPDATER_CONFIG", "")
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stdout)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestConfigure_WritesServerPath(t *testing.T) {
	dir := isolate(t)
	configFile := filepath.Join(dir, "vsupdater.toml")
	serverPath := filepath.Join(dir, "srv", "server")

	out, err := execute(t, "--config", configFile, "configure", serverPath)
	require.Error(t, err, "explicit --config must exist")
	assert.Empty(t, out)

	require.NoError(t, os.WriteFile(configFile, nil, 0644))
	out, err = execute(t, "--config", configFile, "configure", serverPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Server path set to "+serverPath)

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), serverPath)
	assert.Contains(t, string(data), filepath.Join(dir, "srv", "server_backup"))
}

func TestConfigure_DefaultsToXDGPath(t *testing.T) {
	dir := isolate(t)
	t.Chdir(dir)

	_, err := execute(t, "configure", "/srv/vs/server")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config", "vsupdater", "config.toml"))
	assert.NoError(t, err)
}

func TestCheck_RequiresServerPath(t *testing.T) {
	dir := isolate(t)
	configFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configFile, nil, 0644))

	_, err := execute(t, "--config", configFile, "check")
	require.Error(t, err)
	assert.True(t, vserrors.IsErrorCode(err, vserrors.ErrConfigValid))
}

func TestUpdate_RefusesConcurrentRun(t *testing.T) {
	dir := isolate(t)
	serverPath := filepath.Join(dir, "server")
	configFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("[local_server]\nserver_fullpath = \""+serverPath+"\"\n"), 0644))

	held, err := lock.Acquire(serverPath + ".lock")
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	for _, sub := range []string{"update", "autoupdate", "worldbackup"} {
		_, err := execute(t, "--config", configFile, sub)
		assert.True(t, vserrors.IsErrorCode(err, vserrors.ErrLocked), "%s: %v", sub, err)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	isolate(t)
	_, err := execute(t, "-o", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}

func TestExitCode(t *testing.T) {
	rollback := vserrors.New(vserrors.ErrRollbackFailed, "restore failed")

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(vserrors.New(vserrors.ErrRemoteUnavailable, "down")))
	assert.Equal(t, 2, ExitCode(rollback))
	assert.Equal(t, 2, ExitCode(errors.Join(vserrors.New(vserrors.ErrServiceControlFailed, "start"), rollback)))
}

func TestReportError(t *testing.T) {
	saved := verbosity
	verbosity = 0
	t.Cleanup(func() { verbosity = saved })

	var buf bytes.Buffer
	reportError(&buf, vserrors.New(vserrors.ErrRemoteUnavailable, "file server down"))
	assert.Empty(t, buf.String(), "ordinary failures need -vvv for the full report")

	rollback := vserrors.New(vserrors.ErrRollbackFailed, "restore failed").
		WithDetail("backup", "/srv/vs/server_backup")
	reportError(&buf, rollback)
	assert.Contains(t, buf.String(), "FATAL: [ROLLBACK_FAILED] restore failed")
	assert.Contains(t, buf.String(), "/srv/vs/server_backup")

	buf.Reset()
	verbosity = 3
	reportError(&buf, vserrors.New(vserrors.ErrRemoteUnavailable, "file server down"))
	assert.Contains(t, buf.String(), "FATAL: [REMOTE_UNAVAILABLE] file server down")
}

func TestResultText(t *testing.T) {
	committed := &update.Result{
		RunID:       "abc",
		FromVersion: "1.19.2",
		ToVersion:   "1.19.3",
		FinalState:  types.StateCommitted,
		Duration:    1500 * time.Millisecond,
	}
	text := resultText{committed}.String()
	assert.True(t, strings.HasPrefix(text, "Server was successfully updated to version 1.19.3\n\n"))
	assert.Contains(t, text, "Target:")
	assert.Contains(t, text, "1.5s")

	upToDate := &update.Result{RunID: "def", FromVersion: "1.19.3", ToVersion: "1.19.3", FinalState: types.StateUpToDate}
	text = resultText{upToDate}.String()
	assert.Contains(t, text, "1.19.3 is the latest")
	assert.NotContains(t, text, "Target:")

	failed := &update.Result{RunID: "ghi", FinalState: types.StateRolledBack, FromVersion: "1.19.2", ToVersion: "1.19.3"}
	text = resultText{failed}.String()
	assert.True(t, strings.HasPrefix(text, "Run:"))
	assert.Contains(t, text, "rolled_back")
}
