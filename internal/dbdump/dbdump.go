// Package dbdump implements the optional MySQL logical-dump side channel
// requested with --include-db: shelling out to mysqldump to produce a .sql
// file alongside a snapshot, and to mysql to restore one. Neither the
// snapshot engine nor the manifest format knows anything about databases;
// they only ever see the resulting filename as an opaque string.
package dbdump

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/kibo-snap/kibo/internal/cliconfig"
	"github.com/kibo-snap/kibo/internal/environment"
)

const dumpsDirName = "db_snapshots"

// passwordEnv builds the environment block for a mysqldump/mysql child
// process, carrying the password via MYSQL_PWD rather than a --password
// argument so it never shows up in a process listing.
func passwordEnv(password string) []string {
	vars := environment.ToMap(os.Environ())
	if password != "" {
		vars["MYSQL_PWD"] = password
	} else {
		delete(vars, "MYSQL_PWD")
	}
	return environment.FromMap(vars)
}

// DumpsDir returns the directory under root where database dump files live.
func DumpsDir(root string) string {
	return filepath.Join(root, ".kibo", dumpsDirName)
}

// Dump shells out to mysqldump to capture dbConfig's database, writing the
// result under DumpsDir(root) with an auto-generated, collision-resistant
// filename, and returns that filename (not a full path) for storage in the
// manifest's opaque side-data slot. A non-zero mysqldump exit status is
// reported as an error and no filename is returned, per the documented
// failure policy: the manifest simply records no database dump.
func Dump(root, snapshotName string, dbConfig cliconfig.DatabaseConfig, verbose bool) (string, error) {
	if dbConfig.Type != "mysql" {
		return "", fmt.Errorf("only mysql databases are currently supported, got %q", dbConfig.Type)
	}

	dir := DumpsDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating database dump directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.sql", snapshotName, dbConfig.Name, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	args := []string{
		fmt.Sprintf("--user=%s", dbConfig.User),
		fmt.Sprintf("--host=%s", dbConfig.Host),
		fmt.Sprintf("--port=%d", dbConfig.Port),
		"--databases", dbConfig.Name,
		"--routines", "--triggers", "--events",
	}
	if dbConfig.SingleTransaction {
		args = append(args, "--single-transaction")
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating dump file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command("mysqldump", args...)
	cmd.Stdout = out
	cmd.Env = passwordEnv(dbConfig.Password)
	if verbose {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("mysqldump failed: %w", err)
	}

	return filename, nil
}

// Load shells out to mysql to replay the dump file named by filename back
// into dbConfig's database. Load assumes the caller has already obtained any
// necessary user confirmation, since overwriting a live database is
// destructive.
func Load(root, filename string, dbConfig cliconfig.DatabaseConfig, verbose bool) error {
	if dbConfig.Type != "mysql" {
		return fmt.Errorf("only mysql databases are currently supported, got %q", dbConfig.Type)
	}

	path := filepath.Join(DumpsDir(root), filename)
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dump file: %w", err)
	}
	defer in.Close()

	args := []string{
		fmt.Sprintf("--user=%s", dbConfig.User),
		fmt.Sprintf("--host=%s", dbConfig.Host),
		fmt.Sprintf("--port=%d", dbConfig.Port),
	}

	cmd := exec.Command("mysql", args...)
	cmd.Stdin = in
	cmd.Env = passwordEnv(dbConfig.Password)
	if verbose {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mysql load failed: %w", err)
	}
	return nil
}

// PruneUnreferenced removes dump files under DumpsDir(root) that are not
// named by any manifest's DBDumpFilename, mirroring the snapshot engine's
// blob garbage collection but for the database side channel, which the core
// store knows nothing about.
func PruneUnreferenced(root string, referenced map[string]bool) (int, error) {
	dir := DumpsDir(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		if referenced[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
