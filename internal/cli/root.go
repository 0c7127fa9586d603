// Package cli implements the tradedesk command-line client on top of the
// pkg/tradedesk SDK.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tradedesk/pkg/tradedesk"
)

var rootCmd = &cobra.Command{
	Use:   "tradedesk",
	Short: "Command-line client for the tradedesk trading server",
	Long: `tradedesk is the command-line client for a running tradedesk-server.

It submits buy, sell, and adjust orders, moves stop-losses and targets,
toggles auto-exit, and inspects open trades, trade history, order status,
and the risk pool.`,
	SilenceUsage: true,
}

var serverURL string

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s",
		"http://localhost:8080", "base URL of the tradedesk server")
}

func client() *tradedesk.Client {
	return tradedesk.NewClient(serverURL)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
