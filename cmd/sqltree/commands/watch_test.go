package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/playground"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/syntaxtest"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.String()
}

func TestRunWatch_RedrawsOnSave(t *testing.T) {
	t.Parallel()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(dir, "query.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1"), 0o600))

	engine := &syntaxtest.Engine{}
	sess := newTestSession(t, engine)

	pg := playground.New(sess, playground.WithInterval(10*time.Millisecond))
	t.Cleanup(pg.Close)

	ctx, cancel := context.WithCancel(context.Background())

	var out lockedBuffer

	done := make(chan error, 1)

	go func() {
		done <- runWatch(ctx, pg, path, WatchOptions{Plain: true}, &out, slog.Default())
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"SELECT 1"`)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("SELECT 22"), 0o600))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"SELECT 22"`)
	}, 5*time.Second, 10*time.Millisecond)

	assert.NotContains(t, out.String(), clearScreen)

	cancel()
	require.NoError(t, <-done)
}

func TestRunWatch_MissingDirectory(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t, &syntaxtest.Engine{})

	pg := playground.New(sess)
	t.Cleanup(pg.Close)

	path := filepath.Join(t.TempDir(), "gone", "query.sql")

	err := runWatch(context.Background(), pg, path, WatchOptions{}, &lockedBuffer{}, slog.Default())
	require.Error(t, err)
}

func TestWatchCommand_Flags(t *testing.T) {
	t.Parallel()

	cmd := NewWatchCommand()
	assert.Equal(t, "watch FILE", cmd.Use)

	for _, name := range []string{"grammar", "debounce", "all-nodes", "max-snippet", "plain"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
