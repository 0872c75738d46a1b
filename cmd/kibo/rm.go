package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/dbdump"
	"github.com/kibo-snap/kibo/internal/history"
	"github.com/kibo-snap/kibo/internal/manifest"
)

var rmCommand = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Delete one or more snapshots and reclaim their unreferenced blobs",
	Args:  cobra.MinimumNArgs(1),
	Run:   cliutil.Mainify(rmMain),
}

func rmMain(command *cobra.Command, arguments []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return errors.Wrap(err, "loading workspace")
	}

	for _, name := range arguments {
		if !manifest.Exists(ws.Root, name) {
			return fmt.Errorf("snapshot %q does not exist", name)
		}
	}

	if !confirm(fmt.Sprintf("Delete %s?", strings.Join(arguments, ", "))) {
		fmt.Println("Remove cancelled.")
		return nil
	}

	result, err := ws.Engine.Remove(arguments)
	if err != nil {
		return errors.Wrap(err, "removing snapshots")
	}

	manifests, err := manifest.List(ws.Root, ws.Logger)
	if err != nil {
		return errors.Wrap(err, "listing snapshots")
	}
	referenced := make(map[string]bool)
	for _, m := range manifests {
		if m.DBDumpFilename != "" {
			referenced[m.DBDumpFilename] = true
		}
	}
	if _, err := dbdump.PruneUnreferenced(ws.Root, referenced); err != nil {
		cliutil.Warning(fmt.Sprintf("unable to remove unreferenced database dumps: %v", err))
	}

	fmt.Printf("Removed %s: reclaimed %d blobs (%d bytes)\n", strings.Join(arguments, ", "), result.RemovedCount, result.BytesFreed)

	for _, name := range arguments {
		history.Log(ws.Root, history.Entry{Timestamp: time.Now(), Command: "rm", Snapshot: name},
			func(err error) { cliutil.Warning(err.Error()) })
	}

	return nil
}
