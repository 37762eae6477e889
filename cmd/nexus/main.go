package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nexus/internal/logging"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "nexus - conversational assistant with tiered memory",
	Long: `nexus is a conversational assistant that keeps layered memory of every
chat: a short recency buffer, a capped long-term semantic index and a
permanent index for critical facts. Every completed assistant turn is
checkpointed and can be restored later, optionally together with a
system backup of the workspace.

Run without arguments to start the interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.runChat(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Process a single message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.runOnce(cmd.Context(), args)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the default chat's history (checkpoints are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		res := app.router.Handle(cmd.Context(), defaultChatID, "!clear")
		fmt.Println(res.Reply)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $HOME/.nexus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(clearCmd)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
