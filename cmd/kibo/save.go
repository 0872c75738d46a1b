package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/dbdump"
	"github.com/kibo-snap/kibo/internal/history"
	"github.com/kibo-snap/kibo/internal/snapshot"
)

var saveConfiguration struct {
	overwrite bool
	includeDB bool
}

var saveCommand = &cobra.Command{
	Use:   "save <name>",
	Short: "Capture the configured directories and files as a new snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   cliutil.Mainify(saveMain),
}

func init() {
	flags := saveCommand.Flags()
	flags.BoolVar(&saveConfiguration.overwrite, "overwrite", false, "replace an existing snapshot of the same name")
	flags.BoolVar(&saveConfiguration.includeDB, "include-db", false, "also capture a mysqldump of the configured database")
}

func saveMain(command *cobra.Command, arguments []string) error {
	name := arguments[0]

	ws, err := loadWorkspace()
	if err != nil {
		return errors.Wrap(err, "loading workspace")
	}

	threshold, _ := ws.Config.MaxSnapshotSizeBytes()
	showProgress := shouldShowProgress(ws.Config.Progress)

	opts := snapshot.BuildOptions{
		Name:                 name,
		Policy:               ws.Config.Policy(),
		Overwrite:            saveConfiguration.overwrite,
		SizeWarningThreshold: threshold,
	}
	if showProgress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(command.ErrOrStderr(), "\rsaving %d/%d", done, total)
			if done == total {
				fmt.Fprintln(command.ErrOrStderr())
			}
		}
	}

	result, err := ws.Engine.Build(opts)
	if err != nil {
		return errors.Wrapf(err, "saving snapshot %q", name)
	}

	flags := []string{}
	if saveConfiguration.includeDB {
		if ws.Config.Database == nil {
			cliutil.Warning("--include-db was given but no [database] section is configured; skipping")
		} else {
			dbConfig := ws.Config.DatabaseConfigOrDefault()
			filename, dumpErr := dbdump.Dump(ws.Root, name, dbConfig, rootConfiguration.verbose)
			if dumpErr != nil {
				cliutil.Warning(fmt.Sprintf("database dump failed, snapshot saved without it: %v", dumpErr))
			} else {
				result.Manifest.DBDumpFilename = filename
				if err := result.Manifest.Save(ws.Root, ws.Logger); err != nil {
					return errors.Wrap(err, "recording database dump filename")
				}
				flags = append(flags, "--include-db")
			}
		}
	}

	fmt.Printf("Saved snapshot %q: %d files, %s (%d new blobs, %d reused)\n",
		name, result.Manifest.FileCount, humanize.Bytes(result.Manifest.TotalSize), result.NewBlobs, result.ReusedBlobs)

	history.Log(ws.Root, history.Entry{Timestamp: time.Now(), Command: "save", Snapshot: name, Flags: flags},
		func(err error) { cliutil.Warning(err.Error()) })

	return nil
}
