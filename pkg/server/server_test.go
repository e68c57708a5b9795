package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/cache"
	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
	"github.com/Sumatoshi-tech/sqltree/pkg/server"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/syntaxtest"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

var errBoom = errors.New("boom")

var discardLogger = slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

func newSession(t *testing.T, engine *syntaxtest.Engine, ready bool) *session.Session {
	t.Helper()

	sess := session.New(engine, "sql", session.WithLogger(discardLogger))
	if ready {
		require.NoError(t, sess.Initialize(context.Background()))
	}

	t.Cleanup(sess.Close)

	return sess
}

func newTestServer(t *testing.T, sess *session.Session, opts ...server.Option) *httptest.Server {
	t.Helper()

	opts = append([]server.Option{
		server.WithLogger(discardLogger),
		server.WithInterval(time.Hour),
	}, opts...)

	ts := httptest.NewServer(server.New(sess, opts...).Handler())
	t.Cleanup(ts.Close)

	return ts
}

func postParse(t *testing.T, ts *httptest.Server, body string) (int, server.ParseResponse) {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/parse", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	defer resp.Body.Close()

	var out server.ParseResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestParse_ReturnsProjection(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{}, true))

	status, out := postParse(t, ts, `{"sql":"SELECT 1;"}`)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "program", out.Nodes[0].Type)
	assert.Equal(t, view.KindTree, out.Screen.Kind)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 1, out.Summary.Nodes)
}

func TestParse_CachedProjection(t *testing.T) {
	t.Parallel()

	engine := &syntaxtest.Engine{}
	projections := cache.New(0)
	ts := newTestServer(t, newSession(t, engine, true), server.WithCache(projections))

	for range 3 {
		status, out := postParse(t, ts, `{"sql":"SELECT 1;"}`)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, out.Nodes, 1)
	}

	status, out := postParse(t, ts, `{"sql":"SELECT 1;","allNodes":true}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Nodes, 1)

	assert.Equal(t, []string{"SELECT 1;", "SELECT 1;"}, engine.Texts())

	stats := projections.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, 2, stats.Entries)
}

func TestParse_EmptySQL(t *testing.T) {
	t.Parallel()

	engine := &syntaxtest.Engine{}
	ts := newTestServer(t, newSession(t, engine, true))

	status, out := postParse(t, ts, `{"sql":""}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, view.KindEmpty, out.Screen.Kind)
	assert.Equal(t, view.MessageEmpty, out.Screen.Message)
	assert.Empty(t, engine.Texts())
}

func TestParse_RejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{}, true))

	for _, body := range []string{`{"query":"SELECT 1"}`, `{"sql":1}`, `{"sql":`} {
		status, out := postParse(t, ts, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.NotEmpty(t, out.Error, body)
	}
}

func TestParse_NotReady(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{}, false))

	status, out := postParse(t, ts, `{"sql":"SELECT 1;"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, view.KindLoading, out.Screen.Kind)
}

func TestParse_Failure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{ParseErr: errBoom}, true))

	status, out := postParse(t, ts, `{"sql":"SELECT 1;"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, view.KindError, out.Screen.Kind)
	assert.Contains(t, out.Error, "failed to parse SQL query")
}

func TestParse_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{}, true))

	resp, err := http.Get(ts.URL + "/api/parse")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExamples(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newSession(t, &syntaxtest.Engine{}, true))

	resp, err := http.Get(ts.URL + "/api/examples")
	require.NoError(t, err)

	defer resp.Body.Close()

	var got []examples.Example

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, examples.All(), got)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	sess := newSession(t, &syntaxtest.Engine{}, false)
	ts := newTestServer(t, sess)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, sess.Initialize(context.Background()))

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	sess := newSession(t, &syntaxtest.Engine{}, true)

	resp, err := http.Get(newTestServer(t, sess).URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	scrape := http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte("sqltree_requests_total 1\n"))
	})

	resp, err = http.Get(newTestServer(t, sess, server.WithMetricsHandler(scrape)).URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
