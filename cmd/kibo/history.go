package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/history"
)

var historyConfiguration struct {
	snapshot string
	last     int
}

var historyCommand = &cobra.Command{
	Use:   "history",
	Short: "Show the recorded history of save/load/rm/prune operations",
	Args:  cobra.NoArgs,
	Run:   cliutil.Mainify(historyMain),
}

func init() {
	flags := historyCommand.Flags()
	flags.StringVar(&historyConfiguration.snapshot, "snapshot", "", "only show entries for this snapshot")
	flags.IntVar(&historyConfiguration.last, "last", 0, "only show the last N entries")
}

func historyMain(command *cobra.Command, arguments []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return errors.Wrap(err, "determining workspace root")
	}

	entries, err := history.ReadAll(root)
	if err != nil {
		return errors.Wrap(err, "reading history")
	}

	if historyConfiguration.snapshot != "" {
		entries = history.FilterBySnapshot(entries, historyConfiguration.snapshot)
	}
	if historyConfiguration.last > 0 {
		entries = history.TakeLast(entries, historyConfiguration.last)
	}

	if len(entries) == 0 {
		fmt.Println("No history recorded.")
		return nil
	}

	for _, entry := range entries {
		fmt.Println(entry.Display())
	}
	return nil
}

func workspaceRoot() (string, error) {
	if rootConfiguration.workspaceDir != "" {
		return rootConfiguration.workspaceDir, nil
	}
	return os.Getwd()
}
