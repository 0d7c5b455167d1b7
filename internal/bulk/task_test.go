package bulk

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTaskFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write task file: %v", err)
	}
	return path
}

func TestLoadTasksCSV(t *testing.T) {
	path := writeTaskFile(t, "recipients.csv",
		"phone,message,attachment\n"+
			"+15550001111,custom greeting,\n"+
			"+15550002222,,\n"+
			"+15550003333,with file,/tmp/flyer.jpg\n")

	tasks, err := LoadTasks(path, "default body", "")
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Body != "custom greeting" {
		t.Errorf("row body not used: %q", tasks[0].Body)
	}
	if tasks[1].Body != "default body" {
		t.Errorf("default body not applied: %q", tasks[1].Body)
	}
	if tasks[2].Attachment != "/tmp/flyer.jpg" {
		t.Errorf("row attachment not used: %q", tasks[2].Attachment)
	}
}

func TestLoadTasksCSVWithoutHeader(t *testing.T) {
	path := writeTaskFile(t, "recipients.csv", "+15550001111\n+15550002222\n")

	tasks, err := LoadTasks(path, "hi", "")
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 (no header to skip)", len(tasks))
	}
}

func TestLoadTasksPlainList(t *testing.T) {
	path := writeTaskFile(t, "recipients.txt",
		"# campaign list\n+15550001111\n\n+15550002222\n")

	tasks, err := LoadTasks(path, "hi", "/tmp/a.png")
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 (comments and blanks ignored)", len(tasks))
	}
	if tasks[0].Attachment != "/tmp/a.png" {
		t.Errorf("default attachment not applied: %q", tasks[0].Attachment)
	}
}

func TestLoadTasksMissingFile(t *testing.T) {
	if _, err := LoadTasks("/nonexistent/recipients.csv", "hi", ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}
