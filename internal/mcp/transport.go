package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sales-voice-lab/internal/logging"
)

const defaultWriteTimeout = 10 * time.Second

// NewWebSocketTransport serves MCP over an established websocket. The
// control server wraps upgraded connections and the client wraps dialed
// ones; JSON-RPC messages travel one per text frame.
func NewWebSocketTransport(conn *websocket.Conn) sdk.Transport {
	return wsTransport{conn: conn}
}

type wsTransport struct{ conn *websocket.Conn }

func (t wsTransport) Connect(context.Context) (sdk.Connection, error) {
	c := &wsConn{id: uuid.NewString(), ws: t.conn}
	logging.Debugw("mcp: websocket connection", "mcp_conn", c.id, "remote", t.conn.RemoteAddr().String())
	return c, nil
}

// wsConn is an sdk.Connection. gorilla allows a single concurrent writer,
// so frames and the close handshake share writeMu.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) SessionID() string { return c.id }

// Read blocks for the next message. Cancelling ctx unblocks it by expiring
// the read deadline.
func (c *wsConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.ws.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Time{})
	return jsonrpc.DecodeMessage(data)
}

func (c *wsConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame, best effort, and closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err := c.ws.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}
	})
	return c.closeErr
}
