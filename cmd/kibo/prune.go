package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/dbdump"
	"github.com/kibo-snap/kibo/internal/history"
	"github.com/kibo-snap/kibo/internal/manifest"
)

var pruneCommand = &cobra.Command{
	Use:   "prune",
	Short: "Reclaim blobs and database dumps not referenced by any surviving snapshot",
	Args:  cobra.NoArgs,
	Run:   cliutil.Mainify(pruneMain),
}

func pruneMain(command *cobra.Command, arguments []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return errors.Wrap(err, "loading workspace")
	}

	result, err := ws.Engine.Prune()
	if err != nil {
		return errors.Wrap(err, "pruning")
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
	dumpsRemoved, err := dbdump.PruneUnreferenced(ws.Root, referenced)
	if err != nil {
		cliutil.Warning(fmt.Sprintf("unable to prune unreferenced database dumps: %v", err))
	}

	fmt.Printf("Pruned %d blobs (%d bytes)", result.RemovedCount, result.BytesFreed)
	if dumpsRemoved > 0 {
		fmt.Printf(", %d database dump(s)", dumpsRemoved)
	}
	fmt.Println()

	history.Log(ws.Root, history.Entry{Timestamp: time.Now(), Command: "prune"},
		func(err error) { cliutil.Warning(err.Error()) })

	return nil
}
