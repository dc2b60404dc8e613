// picohub - agent command-queue hub with a Telegram operator console
// License: MIT

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/picohub/cmd/picohub/internal"
	"github.com/sipeed/picohub/cmd/picohub/internal/agents"
	"github.com/sipeed/picohub/cmd/picohub/internal/serve"
	"github.com/sipeed/picohub/cmd/picohub/internal/version"
)

func NewPicohubCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "picohub",
		Short:         "Agent command-queue hub",
		Version:       internal.FormatVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if configPath != "" {
				internal.SetConfigPath(configPath)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")

	cmd.AddCommand(
		serve.NewServeCommand(),
		agents.NewAgentsCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	if err := NewPicohubCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
