// Package mcp connects to the voice control MCP server over websocket.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sales-voice-lab/internal/logging"
)

// ErrNotConnected is returned by calls made before ConnectWebSocket.
var ErrNotConnected = errors.New("mcp: not connected")

// keepaliveInterval is how often an idle session is pinged.
const keepaliveInterval = 30 * time.Second

// ClientWrapper provides a small helper to connect to an MCP server over
// websocket and manage the client session lifecycle.
type ClientWrapper struct {
	client  *sdk.Client
	session *sdk.ClientSession

	stopKeepalive context.CancelFunc
	closeOnce     sync.Once
}

// NewClientWrapper creates a new wrapper with the given name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{client: sdk.NewClient(impl, nil)}
}

// WebSocketURL maps an http(s) base address to the ws(s) endpoint at path.
func WebSocketURL(base, path string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + path
	}
	return u.String(), nil
}

// ConnectWebSocket connects to the MCP server websocket endpoint and creates a session.
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	target, err := WebSocketURL(rawurl, "")
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	sess, err := w.client.Connect(ctx, NewWebSocketTransport(conn), nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mcp connect: %w", err)
	}
	w.session = sess

	kaCtx, cancel := context.WithCancel(context.Background())
	w.stopKeepalive = cancel
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if err := sess.Ping(kaCtx, nil); err != nil && kaCtx.Err() == nil {
					logging.Warnw("mcp keepalive ping failed", "url", target, "err", err)
				}
			}
		}
	}()
	logging.Debugw("mcp client connected", "url", target)
	return nil
}

// CallTool invokes a tool and returns its text content joined by newlines.
// A tool-level error is returned as an error carrying that text.
func (w *ClientWrapper) CallTool(ctx context.Context, name string, args any) (string, error) {
	if w.session == nil {
		return "", ErrNotConnected
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := w.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("%s: %s", name, text)
	}
	return text, nil
}

// Tools lists the names of the tools the server offers.
func (w *ClientWrapper) Tools(ctx context.Context) ([]string, error) {
	if w.session == nil {
		return nil, ErrNotConnected
	}
	res, err := w.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

func (w *ClientWrapper) Close() error {
	var err error
	w.closeOnce.Do(func() {
		if w.stopKeepalive != nil {
			w.stopKeepalive()
		}
		if w.session != nil {
			err = w.session.Close()
		}
	})
	return err
}
