package commands

import (
	"strings"

	"github.com/spf13/cobra"

	appconfig "github.com/saker-ai/phoneai-client/internal/config"
	"github.com/saker-ai/phoneai-client/pkg/runtime"
)

var (
	// Global flags
	configPath string
	endpoint   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "phoneai",
	Short: "Client for a realtime voice agent",
	Long: `phoneai - connect to a realtime voice agent over websocket.

The agent keeps the conversation history; this client sends text and
PCM16 audio turns and receives the agent's streamed audio.

Configuration is read from phoneai.yaml in the working directory (or a
parent), or from the file given with --config. Every key can be set
through PHONEAI_* environment variables.

Examples:
  phoneai serve
  phoneai chat --endpoint ws://localhost:4000/ws
  phoneai say "What are your opening hours?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "agent websocket URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(configCmd)
}

// interactive marks commands that own the terminal, so logs go to file or
// stderr in console format.
func newRuntime(interactive bool, opts ...runtime.Option) (*runtime.Runtime, error) {
	opts = append([]runtime.Option{runtime.WithConfig(func(cfg *appconfig.Config) {
		if url := strings.TrimSpace(endpoint); url != "" {
			cfg.EndpointURL = url
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if interactive {
			cfg.Log.Stdout = false
			cfg.Log.Format = "console"
		}
	})}, opts...)
	return runtime.New(configPath, opts...)
}
