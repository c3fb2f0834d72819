package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sales-voice-lab/internal/control"
	"github.com/sales-voice-lab/internal/mcp"
)

var (
	ctlAddr    string
	ctlTimeout time.Duration
	ctlReason  string
	ctlLimit   int
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running voicebot over MCP",
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "127.0.0.1:8089", "control server address")
	ctlCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 30*time.Second, "overall request timeout")

	stop := toolCmd("stop", "End the voice session", control.ToolStop, func() any {
		return map[string]any{"reason": ctlReason}
	})
	stop.Flags().StringVar(&ctlReason, "reason", "", "message appended to the log before stopping")

	messages := toolCmd("messages", "Print the conversation log", control.ToolMessages, func() any {
		return map[string]any{"limit": ctlLimit}
	})
	messages.Flags().IntVar(&ctlLimit, "limit", 0, "only the last N messages")

	ctlCmd.AddCommand(
		toolCmd("start", "Start a voice session", control.ToolStart, nil),
		stop,
		toolCmd("toggle", "Start or stop, like the microphone button", control.ToolToggle, nil),
		toolCmd("status", "Print the session status", control.ToolStatus, nil),
		messages,
	)
	rootCmd.AddCommand(ctlCmd)
}

// toolCmd builds a subcommand that calls one MCP tool and prints the result.
func toolCmd(use, short, tool string, args func() any) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var a any
			if args != nil {
				a = args()
			}
			out, err := callTool(cmd.Context(), ctlAddr, tool, a)
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
}

func callTool(ctx context.Context, addr, tool string, args any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ctlTimeout)
	defer cancel()
	url, err := mcp.WebSocketURL(addr, "/mcp/ws")
	if err != nil {
		return "", err
	}
	client := mcp.NewClientWrapper("voicebot-ctl", "v1.0.0")
	if err := client.ConnectWebSocket(ctx, url); err != nil {
		return "", err
	}
	defer client.Close()
	return client.CallTool(ctx, tool, args)
}
