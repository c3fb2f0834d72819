package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "voicebot",
	Short:         "Realtime voice conversations with a Gemini Live model",
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `voicebot runs a bidirectional voice session against the Gemini Live API.

"local" talks through this machine's microphone and speakers with a terminal
UI. "discord" talks inside a Discord voice channel and mirrors the transcript
to a text channel. "ctl" drives a running instance over its MCP endpoint.`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
