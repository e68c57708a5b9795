package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/playground"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeAppError       = -32000
)

// Notification methods pushed to the client.
const (
	notifyScreen           = "screen"
	notifyApplyDecorations = "decorations/apply"
	notifyClearDecorations = "decorations/clear"
)

const (
	flushTimeout   = 10 * time.Second
	socketOpPrefix = "ws."
	outcomeOK      = "ok"
	outcomeError   = "error"
)

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// DecorationParams is pushed with decorations/apply.
type DecorationParams struct {
	Handle hover.Handle      `json:"handle"`
	Range  hover.EditorRange `json:"range"`
	Style  string            `json:"style"`
}

// ClearParams is pushed with decorations/clear.
type ClearParams struct {
	Handles []hover.Handle `json:"handles"`
}

// wsClient serializes writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(value); err != nil {
		return fmt.Errorf("write socket message: %w", err)
	}

	return nil
}

// socketView is the remote editor seen through the socket. It implements
// hover.TextView by pushing decoration notifications.
type socketView struct {
	client *wsClient
	next   atomic.Uint64
}

func (v *socketView) ApplyDecorations(rng hover.EditorRange, style string) (hover.Handle, error) {
	handle := hover.Handle("d" + strconv.FormatUint(v.next.Add(1), 10))

	err := v.client.send(rpcNotification{
		Method: notifyApplyDecorations,
		Params: DecorationParams{Handle: handle, Range: rng, Style: style},
	})
	if err != nil {
		return "", err
	}

	return handle, nil
}

func (v *socketView) ClearDecorations(handles []hover.Handle) error {
	return v.client.send(rpcNotification{
		Method: notifyClearDecorations,
		Params: ClearParams{Handles: handles},
	})
}

func (s *Server) handleSocket(rw http.ResponseWriter, hr *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, hr, nil)
	if err != nil {
		s.logger.WarnContext(hr.Context(), "websocket upgrade failed", "error", err)

		return
	}

	conn.SetReadLimit(s.maxMessage)

	client := &wsClient{conn: conn}

	ctx, cancel := context.WithCancel(context.WithoutCancel(hr.Context()))
	defer cancel()

	pg := playground.New(s.sess,
		playground.WithInterval(s.interval),
		playground.WithLogger(s.logger),
		playground.WithTextView(&socketView{client: client}),
		playground.WithProjection(projector.WithMaxSnippet(s.snippetMax)),
		playground.WithMetrics(s.reparse),
	)

	unsubscribe := pg.Subscribe(func(screen view.Screen) {
		if err := client.send(rpcNotification{Method: notifyScreen, Params: screen}); err != nil {
			s.logger.DebugContext(ctx, "push screen", "error", err)
		}
	})

	defer func() {
		unsubscribe()
		pg.Close()

		if err := conn.Close(); err != nil {
			s.logger.DebugContext(ctx, "close websocket", "error", err)
		}
	}()

	pg.Start(ctx)

	if err := client.send(rpcNotification{Method: notifyScreen, Params: pg.Screen()}); err != nil {
		return
	}

	s.logger.DebugContext(ctx, "playground socket opened", "remote", hr.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.logger.DebugContext(ctx, "playground socket closed", "error", err)

			return
		}

		resp := s.dispatch(ctx, pg, msg)

		if err := client.send(resp); err != nil {
			return
		}
	}
}

// dispatch validates msg and runs it against pg.
func (s *Server) dispatch(ctx context.Context, pg *playground.Playground, msg []byte) rpcResponse {
	if err := s.messages.Validate(msg); err != nil {
		code := codeInvalidRequest
		if errors.Is(err, errInvalidJSON) {
			code = codeParseError
		}

		return rpcResponse{Error: &rpcError{Code: code, Message: err.Error()}}
	}

	var req rpcRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return rpcResponse{Error: &rpcError{Code: codeParseError, Message: err.Error()}}
	}

	started := time.Now()

	result, rpcErr := s.call(ctx, pg, req)

	if s.red != nil {
		outcome := outcomeOK
		if rpcErr != nil {
			outcome = outcomeError
		}

		s.red.RecordRequest(ctx, socketOpPrefix+req.Method, outcome, time.Since(started))
	}

	return rpcResponse{ID: req.ID, Result: result, Error: rpcErr}
}

func (s *Server) call(ctx context.Context, pg *playground.Playground, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "setText":
		var params struct {
			Text string `json:"text"`
		}

		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}

		pg.SetText(params.Text)

		return map[string]bool{"accepted": params.Text != ""}, nil
	case "loadExample":
		var params struct {
			Name string `json:"name"`
		}

		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}

		example, err := examples.Get(params.Name)
		if err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}

		pg.SetText(example.Query)

		return example, nil
	case "hover":
		var params struct {
			ID uint64 `json:"id"`
		}

		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}

		if err := pg.Hover(params.ID); err != nil {
			return nil, &rpcError{Code: codeAppError, Message: err.Error()}
		}

		return map[string]uint64{"id": params.ID}, nil
	case "hoverAt":
		var params hover.EditorPosition

		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}

		node, found, err := pg.HoverAtEditor(params)
		if err != nil {
			return nil, &rpcError{Code: codeAppError, Message: err.Error()}
		}

		if !found {
			return map[string]any{"node": nil}, nil
		}

		return map[string]any{"node": node}, nil
	case "leave":
		if err := pg.Leave(); err != nil {
			return nil, &rpcError{Code: codeAppError, Message: err.Error()}
		}

		return map[string]bool{"cleared": true}, nil
	case "flush":
		flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()

		if err := pg.Flush(flushCtx); err != nil {
			return nil, &rpcError{Code: codeAppError, Message: err.Error()}
		}

		return pg.Screen(), nil
	default:
		return pg.Screen(), nil
	}
}
