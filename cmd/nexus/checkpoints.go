package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"nexus/internal/snapshot"
	"nexus/internal/types"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and restore saved conversation checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints and system backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		summaries := app.snapshots.List(cmd.Context())
		if len(summaries) == 0 {
			fmt.Println("No checkpoints saved yet.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Chat", "Kind", "Time", "Preview"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		for _, s := range summaries {
			table.Append([]string{
				s.ID,
				s.ChatID,
				s.Kind,
				s.Timestamp.Format("2006-01-02 15:04:05"),
				s.Preview,
			})
		}
		table.Render()
		return nil
	},
}

var checkpointsRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore the conversation saved under id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		msgs, err := app.snapshots.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d messages from %s.\n", len(msgs), args[0])
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "System backup operations",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the default chat now, including a system backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		history := app.snapshots.LoadHistory(defaultChatID)
		tail, err := snapshotTail(history)
		if err != nil {
			return err
		}

		// Backups are forced on for the explicit command regardless of
		// the configured default.
		projectRoot := app.cfg.Snapshot.ProjectRoot
		if projectRoot == "" {
			projectRoot = app.cfg.Router.WorkspaceDir
		}
		m := snapshot.NewManager(app.cfg.DataDir, app.cfg.Snapshot.Retention, true, projectRoot)
		m.Persist(cmd.Context(), defaultChatID, history)
		fmt.Printf("Snapshot %s written.\n", tail.ID)
		return nil
	},
}

// snapshotTail returns the assistant message a snapshot of history would be
// keyed by. Histories that do not end on an assistant reply never produce a
// checkpoint.
func snapshotTail(history []types.Message) (types.Message, error) {
	if len(history) == 0 {
		return types.Message{}, fmt.Errorf("no history to back up")
	}
	last := history[len(history)-1]
	if last.Role != types.RoleAssistant {
		return types.Message{}, fmt.Errorf("the conversation ends on a %s message; nothing to snapshot", last.Role)
	}
	return last, nil
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsRestoreCmd)
	backupCmd.AddCommand(backupCreateCmd)
}
