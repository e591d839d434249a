package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-notification-realtime/internal/infrastructure/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "notifyctl",
		Short: "Listen to and publish real-time notifications",
		Long: `notifyctl talks to the push server.

  listen   keep a connection open and print toasts and lifecycle events
  publish  post a business event to the publish API
  token    issue a channel token signed with JWT_SECRET

Defaults come from the environment and .env (REALTIME_*, JWT_*, HTTP_ADDR).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		listenCmd(cfg),
		publishCmd(cfg),
		tokenCmd(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
