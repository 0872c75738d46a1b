package history

import (
	"os"
	"testing"
	"time"
)

func TestToLineAndFromLineRoundTrip(t *testing.T) {
	entry := Entry{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Command:   "save",
		Snapshot:  "release-1",
		Flags:     []string{"--include-db", "--yes"},
	}

	line := entry.toLine()
	if line != "2026-01-01T12:00:00Z SAVE release-1 --include-db --yes" {
		t.Fatalf("unexpected line: %q", line)
	}

	parsed, ok := fromLine(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if parsed.Command != "SAVE" || parsed.Snapshot != "release-1" || len(parsed.Flags) != 2 {
		t.Fatalf("unexpected round trip: %+v", parsed)
	}
}

func TestFromLineWithoutSnapshot(t *testing.T) {
	entry, ok := fromLine("2026-01-01T12:00:00Z LIST")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if entry.Snapshot != "" || len(entry.Flags) != 0 {
		t.Fatalf("expected no snapshot or flags, got %+v", entry)
	}
}

func TestFromLineFlagOnlyFirstTokenNotMistakenForSnapshot(t *testing.T) {
	entry, ok := fromLine("2026-01-01T12:00:00Z PRUNE --yes")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if entry.Snapshot != "" {
		t.Fatalf("expected a flag-looking token not to be captured as a snapshot name, got %q", entry.Snapshot)
	}
	if len(entry.Flags) != 1 || entry.Flags[0] != "--yes" {
		t.Fatalf("expected --yes to be captured as a flag, got %v", entry.Flags)
	}
}

func TestFromLineRejectsGarbage(t *testing.T) {
	if _, ok := fromLine("not a valid history line"); ok {
		t.Fatal("expected an unparseable timestamp to be rejected")
	}
	if _, ok := fromLine("2026-01-01T12:00:00Z"); ok {
		t.Fatal("expected a line missing a command to be rejected")
	}
}

func TestLogThenReadAllRoundTrip(t *testing.T) {
	root := t.TempDir()

	Log(root, Entry{Timestamp: time.Now(), Command: "save", Snapshot: "v1"}, nil)
	Log(root, Entry{Timestamp: time.Now(), Command: "load", Snapshot: "v1"}, nil)
	Log(root, Entry{Timestamp: time.Now(), Command: "prune"}, nil)

	entries, err := ReadAll(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Command != "SAVE" || entries[2].Command != "PRUNE" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestReadAllMissingFileReturnsNoEntries(t *testing.T) {
	root := t.TempDir()
	entries, err := ReadAll(root)
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestLogReportsFailureThroughWarnNotError(t *testing.T) {
	root := t.TempDir()
	var captured error
	Log(root, Entry{Timestamp: time.Now(), Command: "save"}, func(err error) { captured = err })
	if captured != nil {
		t.Fatalf("expected a normal write to succeed without warning, got %v", captured)
	}

	// Writing under a path component that is actually a file must fail
	// gracefully and report through warn, never panic.
	blockingFile := root + "/a.txt"
	if err := os.WriteFile(blockingFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var warned error
	Log(blockingFile, Entry{Timestamp: time.Now(), Command: "save"}, func(err error) { warned = err })
	if warned == nil {
		t.Fatal("expected a warning when the history directory cannot be created")
	}
}

func TestFilterBySnapshot(t *testing.T) {
	entries := []Entry{
		{Command: "SAVE", Snapshot: "v1"},
		{Command: "LOAD", Snapshot: "v2"},
		{Command: "RM", Snapshot: "v1"},
	}
	filtered := FilterBySnapshot(entries, "v1")
	if len(filtered) != 2 {
		t.Fatalf("expected 2 entries for v1, got %d", len(filtered))
	}
}

func TestTakeLast(t *testing.T) {
	entries := []Entry{{Command: "A"}, {Command: "B"}, {Command: "C"}}
	last := TakeLast(entries, 2)
	if len(last) != 2 || last[0].Command != "B" || last[1].Command != "C" {
		t.Fatalf("unexpected result: %+v", last)
	}
	if len(TakeLast(entries, 10)) != 3 {
		t.Fatal("expected TakeLast to cap at the slice length")
	}
}
