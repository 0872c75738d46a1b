package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kibo-snap/kibo/internal/cliutil"
	"github.com/kibo-snap/kibo/internal/manifest"
)

var listConfiguration struct {
	json bool
}

var listCommand = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots, most recent first",
	Args:  cobra.NoArgs,
	Run:   cliutil.Mainify(listMain),
}

func init() {
	listCommand.Flags().BoolVar(&listConfiguration.json, "json", false, "print snapshots as a JSON array")
}

type listEntry struct {
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at"`
	FileCount   int    `json:"file_count"`
	TotalSize   uint64 `json:"total_size"`
	HasDatabase bool   `json:"has_database"`
}

func listMain(command *cobra.Command, arguments []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return errors.Wrap(err, "loading workspace")
	}

	manifests, err := manifest.List(ws.Root, ws.Logger)
	if err != nil {
		return errors.Wrap(err, "listing snapshots")
	}

	if listConfiguration.json {
		entries := make([]listEntry, len(manifests))
		for i, m := range manifests {
			entries[i] = listEntry{
				Name:        m.Name,
				CreatedAt:   m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				FileCount:   m.FileCount,
				TotalSize:   m.TotalSize,
				HasDatabase: m.DBDumpFilename != "",
			}
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(manifests) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}

	for _, m := range manifests {
		db := ""
		if m.DBDumpFilename != "" {
			db = " [+db]"
		}
		fmt.Printf("%-30s %-20s %6d files  %10s%s\n",
			m.Name, m.CreatedAt.Format("2006-01-02 15:04:05"), m.FileCount, humanize.Bytes(m.TotalSize), db)
	}
	return nil
}
