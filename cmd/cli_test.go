package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayFixture = `[
  {"type":"hello","url":"https://meet.google.com/abc-defg-hij"},
  {"type":"region","at":"2026-04-01T12:00:00Z","attrs":{"role":"region","aria-label":"Captions"},"children":[{"handle":"c1","text":"Alice\nHello"}]},
  {"type":"region","at":"2026-04-01T12:00:02Z","attrs":{"role":"region","aria-label":"Captions"},"children":[{"handle":"c1","text":"Alice\nHello everyone"},{"handle":"c2","text":"Bob\nHi Alice"}]},
  {"type":"region","at":"2026-04-01T12:00:05Z","attrs":{"role":"region","aria-label":"Captions"},"children":[{"handle":"c2","text":"Bob\nHi Alice, welcome"}]}
]`

type fixture struct {
	dir        string
	configPath string
	socket     string
	dbPath     string
	exportDir  string
}

// newFixture writes a config file pointing every path into temp
// directories. Unix socket paths are length-limited, so the socket lives
// under a short temp dir of its own.
func newFixture(t *testing.T) fixture {
	t.Helper()

	dir := t.TempDir()
	sockDir, err := os.MkdirTemp("", "cap")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	f := fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		socket:     filepath.Join(sockDir, "c.sock"),
		dbPath:     filepath.Join(dir, "captions.sqlite"),
		exportDir:  filepath.Join(dir, "exports"),
	}

	config := fmt.Sprintf(`socket = %q
listen = "127.0.0.1:0"

[db]
path = %q

[export]
dir = %q

[log]
level = "error"
`, f.socket, f.dbPath, f.exportDir)
	require.NoError(t, os.WriteFile(f.configPath, []byte(config), 0o600))
	t.Setenv(configEnv, f.configPath)
	return f
}

func (f fixture) writeReplay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "replay.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func replaySessionID() string {
	return fmt.Sprintf("abc-defg-hij-%d", time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC).UnixMilli())
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	t.Setenv(configEnv, path)

	stdout, _, err := executeCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debounce")
	assert.Contains(t, string(data), "300ms")

	_, _, err = executeCLI(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeCLI(t, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigPath(t *testing.T) {
	f := newFixture(t)

	stdout, _, err := executeCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, f.configPath+"\n", stdout)
}

func TestBrokenConfigStillAllowsInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("socket = [oops\n"), 0o600))
	t.Setenv(configEnv, path)

	_, _, err := executeCLI(t, "status")
	require.Error(t, err)

	stdout, _, err := executeCLI(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote")
}

func TestReplayPrintsTranscript(t *testing.T) {
	f := newFixture(t)
	file := f.writeReplay(t, replayFixture)

	stdout, _, err := executeCLI(t, "replay", file)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Session "+replaySessionID())
	assert.Contains(t, stdout, "2 records")
	assert.Contains(t, stdout, "[12:00:02] Alice: Hello everyone\n")
	assert.Contains(t, stdout, "[12:00:05] Bob: Hi Alice, welcome\n")
	assert.NotContains(t, stdout, "Alice: Hello\n")

	// Without --save nothing touches the configured database.
	_, err = os.Stat(f.dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReplaySaveExportAndBrowseOffline(t *testing.T) {
	f := newFixture(t)
	file := f.writeReplay(t, replayFixture)
	outDir := filepath.Join(f.dir, "out")

	stdout, stderr, err := executeCLI(t, "replay", file, "--save", "--json", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported "+replaySessionID())

	var records []caption.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].ID)
	assert.Equal(t, "Alice", records[0].Speaker)
	assert.Equal(t, 2, records[1].ID)

	_, err = os.Stat(filepath.Join(outDir, replaySessionID()+".json"))
	require.NoError(t, err)

	// No daemon is running: listing and showing read the database directly.
	stdout, _, err = executeCLI(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SESSION")
	assert.Contains(t, stdout, replaySessionID())

	stdout, _, err = executeCLI(t, "show", replaySessionID())
	require.NoError(t, err)
	assert.Contains(t, stdout, "[12:00:02] Alice: Hello everyone")

	exportDir := filepath.Join(f.dir, "again")
	stdout, _, err = executeCLI(t, "export", replaySessionID(), "--dir", exportDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, filepath.Join(exportDir, replaySessionID()+".json"))

	_, _, err = executeCLI(t, "show", "missing-session")
	require.ErrorIs(t, err, caption.ErrSessionNotFound)
}

func TestReplayWithoutCaptionRegion(t *testing.T) {
	f := newFixture(t)
	file := f.writeReplay(t, `[{"type":"hello","url":"https://meet.google.com/abc-defg-hij"}]`)

	_, _, err := executeCLI(t, "replay", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never exposed a caption region")
}

func TestReplayRejectsMalformedFile(t *testing.T) {
	f := newFixture(t)
	file := f.writeReplay(t, `{"type":`)

	_, _, err := executeCLI(t, "replay", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse replay file")
}

func TestControlCommandsWithoutDaemon(t *testing.T) {
	newFixture(t)

	for _, args := range [][]string{{"status"}, {"start"}, {"stop"}, {"export", "x"}} {
		_, _, err := executeCLI(t, args...)
		require.Error(t, err, "%v", args)
		assert.ErrorIs(t, err, errDaemonNotRunning, "%v", args)
	}
}

func TestControlCommandsAgainstDaemon(t *testing.T) {
	f := newFixture(t)

	app, err := wireApp()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, app) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", f.socket)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	stdout, _, err := executeCLI(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "state: idle\n", stdout)

	stdout, _, err = executeCLI(t, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"isRecording": false`)

	// No meeting tab is connected to the hub.
	_, _, err = executeCLI(t, "start")
	require.Error(t, err)
	assert.Equal(t, "Captions container not found. Enable captions first.", err.Error())

	stdout, _, err = executeCLI(t, "stop")
	require.NoError(t, err)
	assert.Equal(t, "Not recording (0 records)\n", stdout)

	stdout, _, err = executeCLI(t, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "No sessions recorded yet.\n", stdout)

	_, _, err = executeCLI(t, "export", "missing-session")
	require.Error(t, err)
	assert.Equal(t, "Session not found", err.Error())
}
