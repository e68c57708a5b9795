package server_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/syntaxtest"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

type message struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()

	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn
}

// readUntil reads messages until match accepts one, returning it and every
// message seen before it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(message) bool) (message, []message) {
	t.Helper()

	var seen []message

	for {
		var msg message

		require.NoError(t, conn.ReadJSON(&msg))

		if match(msg) {
			return msg, seen
		}

		seen = append(seen, msg)
	}
}

func response(id float64) func(message) bool {
	return func(msg message) bool {
		num, ok := msg.ID.(float64)

		return msg.Method == "" && ok && num == id
	}
}

func TestSocket_InitialScreen(t *testing.T) {
	t.Parallel()

	conn := dial(t, newTestServer(t, newSession(t, &syntaxtest.Engine{}, true)))

	msg, _ := readUntil(t, conn, func(msg message) bool { return msg.Method == "screen" })

	var screen view.Screen

	require.NoError(t, json.Unmarshal(msg.Params, &screen))
	assert.Equal(t, view.KindEmpty, screen.Kind)
}

func TestSocket_SetTextFlushAndHover(t *testing.T) {
	t.Parallel()

	engine := &syntaxtest.Engine{}
	conn := dial(t, newTestServer(t, newSession(t, engine, true)))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "method": "setText", "params": map[string]string{"text": "SELECT 1;"}}))
	readUntil(t, conn, response(1))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 2, "method": "flush"}))
	msg, _ := readUntil(t, conn, response(2))
	require.Nil(t, msg.Error)

	var screen view.Screen

	require.NoError(t, json.Unmarshal(msg.Result, &screen))
	require.Equal(t, view.KindTree, screen.Kind)
	require.Len(t, screen.Rows, 1)
	assert.Equal(t, []string{"SELECT 1;"}, engine.Texts())

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 3, "method": "hover", "params": map[string]uint64{"id": screen.Rows[0].ID}}))
	msg, seen := readUntil(t, conn, response(3))
	require.Nil(t, msg.Error)

	var applied *struct {
		Range hover.EditorRange `json:"range"`
		Style string            `json:"style"`
	}

	for _, note := range seen {
		if note.Method == "decorations/apply" {
			require.NoError(t, json.Unmarshal(note.Params, &applied))
		}
	}

	require.NotNil(t, applied)
	assert.Equal(t, hover.HighlightStyle, applied.Style)
	assert.Equal(t, hover.EditorRange{StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 10}, applied.Range)
}

func TestSocket_LoadExample(t *testing.T) {
	t.Parallel()

	engine := &syntaxtest.Engine{}
	conn := dial(t, newTestServer(t, newSession(t, engine, true)))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "method": "loadExample", "params": map[string]string{"name": "basic"}}))
	msg, _ := readUntil(t, conn, response(1))
	require.Nil(t, msg.Error)

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 2, "method": "flush"}))
	readUntil(t, conn, response(2))

	texts := engine.Texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], "-- Basic SQL query"))
}

func TestSocket_RejectsInvalidMessages(t *testing.T) {
	t.Parallel()

	conn := dial(t, newTestServer(t, newSession(t, &syntaxtest.Engine{}, true)))

	tests := []struct {
		payload string
		code    int
	}{
		{`{"id":1,`, -32700},
		{`{"id":1,"method":"drop"}`, -32600},
		{`{"id":1,"method":"setText"}`, -32600},
		{`{"id":1,"method":"hoverAt","params":{"line":0,"column":1}}`, -32600},
	}

	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))

		msg, _ := readUntil(t, conn, func(msg message) bool { return msg.Method == "" })
		require.NotNil(t, msg.Error, tt.payload)
		assert.Equal(t, tt.code, msg.Error.Code, tt.payload)
	}
}

func TestSocket_HoverUnknownNode(t *testing.T) {
	t.Parallel()

	conn := dial(t, newTestServer(t, newSession(t, &syntaxtest.Engine{}, true)))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 7, "method": "hover", "params": map[string]uint64{"id": 99}}))

	msg, _ := readUntil(t, conn, response(7))
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32000, msg.Error.Code)
	assert.Contains(t, msg.Error.Message, "unknown node")
}
