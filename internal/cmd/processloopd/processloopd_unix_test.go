//go:build unix

package processloopd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/go-processloop/internal/pidfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRun_ThreadSignals(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "processloopd.pid")
	metricsPath := filepath.Join(dir, "processloopd.prom")
	cfg, err := ParseConfig(newFlagSet(), []string{
		"-mode", ModeThread,
		"-frame-interval", "1ms",
		"-log-level", "debug",
		"-pid-file", pidPath,
		"-metrics-file", metricsPath,
		"-signals", "USR1",
	})
	require.NoError(t, err)

	var buf syncBuffer
	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, &buf) }()

	waitFor(t, func() bool { return fileExists(pidPath) })

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGHUP))
	waitFor(t, func() bool { return strings.Count(buf.String(), "settings loaded") >= 2 })

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
	waitFor(t, func() bool { return strings.Contains(buf.String(), "heartbeat status") })

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGTERM))
	require.NoError(t, <-errCh)

	assert.False(t, fileExists(pidPath))
	assert.True(t, fileExists(metricsPath))
	assert.Contains(t, buf.String(), "heartbeat stopped")
}

func TestRun_ProcessSignals(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "processloopd.pid")
	metricsPath := filepath.Join(dir, "processloopd.prom")
	t.Setenv("PROCESSLOOPD_MODE", ModeProcess)
	t.Setenv("PROCESSLOOPD_FRAME_INTERVAL", "1ms")
	t.Setenv("PROCESSLOOPD_PID_FILE", pidPath)
	t.Setenv("PROCESSLOOPD_METRICS_FILE", metricsPath)

	cfg, err := ParseConfig(newFlagSet(), nil)
	require.NoError(t, err)

	var buf syncBuffer
	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, &buf) }()

	// the child holds the pidfile
	var pid int
	waitFor(t, func() bool {
		pid, err = pidfile.Read(pidPath)
		return err == nil
	})
	assert.NotEqual(t, os.Getpid(), pid)
	assert.Contains(t, buf.String(), "started loop process")

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGTERM))
	require.NoError(t, <-errCh)

	assert.False(t, fileExists(pidPath))
	assert.True(t, fileExists(metricsPath))
}
