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
	"github.com/kibo-snap/kibo/internal/snapshot"
)

var loadConfiguration struct {
	dryRun    bool
	includeDB bool
}

var loadCommand = &cobra.Command{
	Use:   "load <name>",
	Short: "Restore the workspace to match a previously saved snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   cliutil.Mainify(loadMain),
}

func init() {
	flags := loadCommand.Flags()
	flags.BoolVar(&loadConfiguration.dryRun, "dry-run", false, "report what would change without modifying the workspace")
	flags.BoolVar(&loadConfiguration.includeDB, "include-db", false, "also restore the snapshot's database dump, if any")
}

func loadMain(command *cobra.Command, arguments []string) error {
	name := arguments[0]

	ws, err := loadWorkspace()
	if err != nil {
		return errors.Wrap(err, "loading workspace")
	}

	if !loadConfiguration.dryRun && !confirm(fmt.Sprintf("Restore snapshot %q? This will overwrite tracked files.", name)) {
		fmt.Println("Load cancelled.")
		return nil
	}

	showProgress := shouldShowProgress(ws.Config.Progress)
	opts := snapshot.RestoreOptions{Name: name, DryRun: loadConfiguration.dryRun}
	if showProgress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(command.ErrOrStderr(), "\rrestoring %d/%d", done, total)
			if done == total {
				fmt.Fprintln(command.ErrOrStderr())
			}
		}
	}

	result, err := ws.Engine.Restore(opts)
	if err != nil {
		return errors.Wrapf(err, "loading snapshot %q", name)
	}

	fmt.Printf("Restored snapshot %q: %d copied, %d unchanged, %d symlinks, %d removed\n",
		name, len(result.Copies), len(result.Unchanged), len(result.Symlinks), len(result.Removed))

	flags := []string{}
	if loadConfiguration.includeDB {
		if err := restoreDatabaseDump(ws, name); err != nil {
			cliutil.Warning(err.Error())
		} else {
			flags = append(flags, "--include-db")
		}
	}

	history.Log(ws.Root, history.Entry{Timestamp: time.Now(), Command: "load", Snapshot: name, Flags: flags},
		func(err error) { cliutil.Warning(err.Error()) })

	return nil
}

func restoreDatabaseDump(ws *workspaceContext, name string) error {
	m, err := manifest.Load(ws.Root, name)
	if err != nil {
		return err
	}
	if m.DBDumpFilename == "" {
		return fmt.Errorf("snapshot %q does not include a database dump; save it with --include-db to capture one", name)
	}
	if ws.Config.Database == nil {
		return fmt.Errorf("no [database] section is configured; cannot restore %s", m.DBDumpFilename)
	}
	if !confirm(fmt.Sprintf("Load database dump %q? This will overwrite the current database.", m.DBDumpFilename)) {
		fmt.Println("Database load skipped.")
		return nil
	}
	dbConfig := ws.Config.DatabaseConfigOrDefault()
	return dbdump.Load(ws.Root, m.DBDumpFilename, dbConfig, rootConfiguration.verbose)
}
