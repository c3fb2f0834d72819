package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sales-voice-lab/internal/logging"
	mcpws "github.com/sales-voice-lab/internal/mcp"
)

// Tool names served on /mcp/ws.
const (
	ToolStart    = "voice_start"
	ToolStop     = "voice_stop"
	ToolToggle   = "voice_toggle"
	ToolStatus   = "voice_status"
	ToolMessages = "voice_messages"
)

type stopArgs struct {
	Reason string `json:"reason,omitempty" jsonschema:"optional message appended to the log before stopping"`
}

type messagesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"return only the last N messages"`
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func errorResult(err error) *sdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

// NewMCPServer builds an MCP server whose tools drive v and read log.
func NewMCPServer(v Voice, log MessageLog) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "voice-control", Version: "v1.0.0"}, nil)

	sdk.AddTool(server, &sdk.Tool{Name: ToolStart, Description: "Start a voice session and wait until it is active"},
		func(ctx context.Context, req *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, any, error) {
			if err := v.Start(context.WithoutCancel(ctx)); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(v.Status().String()), nil, nil
		})

	sdk.AddTool(server, &sdk.Tool{Name: ToolStop, Description: "Stop the voice session"},
		func(ctx context.Context, req *sdk.CallToolRequest, args stopArgs) (*sdk.CallToolResult, any, error) {
			v.Stop(args.Reason)
			return textResult(v.Status().String()), nil, nil
		})

	sdk.AddTool(server, &sdk.Tool{Name: ToolToggle, Description: "Start the session when idle, otherwise stop it"},
		func(ctx context.Context, req *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, any, error) {
			if err := v.Toggle(context.WithoutCancel(ctx)); err != nil {
				return errorResult(err), nil, nil
			}
			return textResult(v.Status().String()), nil, nil
		})

	sdk.AddTool(server, &sdk.Tool{Name: ToolStatus, Description: "Report session status and the caption in progress"},
		func(ctx context.Context, req *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, any, error) {
			out, err := json.Marshal(StatusResponse{
				Status:     v.Status(),
				SessionID:  v.SessionID(),
				Transcript: v.Transcript(),
			})
			if err != nil {
				return nil, nil, err
			}
			return textResult(string(out)), nil, nil
		})

	sdk.AddTool(server, &sdk.Tool{Name: ToolMessages, Description: "List the conversation log, oldest first"},
		func(ctx context.Context, req *sdk.CallToolRequest, args messagesArgs) (*sdk.CallToolResult, any, error) {
			msgs := log.Messages()
			if args.Limit > 0 && len(msgs) > args.Limit {
				msgs = msgs[len(msgs)-args.Limit:]
			}
			var b strings.Builder
			for _, m := range msgs {
				fmt.Fprintf(&b, "%s [%s] %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Text)
			}
			return textResult(strings.TrimSuffix(b.String(), "\n")), nil, nil
		})

	return server
}

// MCP serves one MCP client session per websocket connection.
// GET /mcp/ws
func (s *Server) MCP(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Warnw("control: mcp upgrade failed", "err", err)
		return nil
	}
	session, err := s.mcp.Connect(c.Request().Context(), mcpws.NewWebSocketTransport(conn), nil)
	if err != nil {
		logging.Warnw("control: mcp connect failed", "err", err)
		_ = conn.Close()
		return nil
	}
	if err := session.Wait(); err != nil {
		logging.Debugw("control: mcp session ended", "err", err)
	}
	return nil
}
