// Package history implements the append-only audit log of operations
// performed against a repository: every save, load, remove, and prune is
// recorded as a single line in .kibo/history.log so that "kibo history" can
// show what happened and when without consulting anything beyond that file.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const logFileName = "history.log"

// Entry is a single recorded operation.
type Entry struct {
	Timestamp time.Time
	Command   string
	Snapshot  string
	Flags     []string
}

// toLine renders an entry as the whitespace-separated line stored on disk:
// timestamp, command, then the snapshot name if any, then any flags.
func (e Entry) toLine() string {
	parts := []string{e.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(e.Command)}
	if e.Snapshot != "" {
		parts = append(parts, e.Snapshot)
	}
	parts = append(parts, e.Flags...)
	return strings.Join(parts, " ")
}

// Display renders an entry as a fixed-width line suitable for "kibo history"
// output.
func (e Entry) Display() string {
	line := fmt.Sprintf("%-25s %-8s %-20s", e.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(e.Command), e.Snapshot)
	if len(e.Flags) > 0 {
		line += " " + strings.Join(e.Flags, " ")
	}
	return line
}

func fromLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, false
	}

	timestamp, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}

	entry := Entry{Timestamp: timestamp, Command: fields[1]}
	rest := fields[2:]
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "--") {
		entry.Snapshot = rest[0]
		rest = rest[1:]
	}
	entry.Flags = rest
	return entry, true
}

func logPath(root string) string {
	return filepath.Join(root, ".kibo", logFileName)
}

// Log appends entry to the repository's history log. Failure to write is
// reported through warn rather than returned: a missing history entry must
// never block or fail the operation it is recording.
func Log(root string, entry Entry, warn func(error)) {
	path := logPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		if warn != nil {
			warn(fmt.Errorf("creating history directory: %w", err))
		}
		return
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if warn != nil {
			warn(fmt.Errorf("opening history log: %w", err))
		}
		return
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, entry.toLine()); err != nil {
		if warn != nil {
			warn(fmt.Errorf("writing history entry: %w", err))
		}
	}
}

// ReadAll returns every entry recorded in the repository's history log, in
// the order they were written. A missing log file is not an error; it
// simply means no operations have been recorded yet. Lines that fail to
// parse are skipped rather than treated as fatal, since the log is meant to
// be forgiving of partial or hand-edited content.
func ReadAll(root string) ([]Entry, error) {
	path := logPath(root)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if entry, ok := fromLine(line); ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// FilterBySnapshot returns only the entries recorded against the given
// snapshot name.
func FilterBySnapshot(entries []Entry, snapshot string) []Entry {
	var filtered []Entry
	for _, entry := range entries {
		if entry.Snapshot == snapshot {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// TakeLast returns the last n entries, or all of them if there are fewer
// than n.
func TakeLast(entries []Entry, n int) []Entry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
