package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Task is one outbound message to deliver.
type Task struct {
	Identifier string
	Body       string
	Attachment string
}

// LoadTasks reads a campaign task file. CSV files carry one row per
// recipient with optional per-row body and attachment columns; any other
// extension is treated as a plain list with one identifier per line.
// defaultBody and defaultAttachment fill the blanks.
func LoadTasks(path, defaultBody, defaultAttachment string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		return readCSV(f, defaultBody, defaultAttachment)
	}
	return readLines(f, defaultBody, defaultAttachment)
}

// readCSV accepts rows of the form: phone[,message[,attachment]].
// A header row whose first cell looks like a column name is skipped.
func readCSV(r io.Reader, defaultBody, defaultAttachment string) ([]Task, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var tasks []Task
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse task file: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if first {
			first = false
			if isHeader(rec[0]) {
				continue
			}
		}

		t := Task{
			Identifier: strings.TrimSpace(rec[0]),
			Body:       defaultBody,
			Attachment: defaultAttachment,
		}
		if len(rec) > 1 && strings.TrimSpace(rec[1]) != "" {
			t.Body = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			t.Attachment = strings.TrimSpace(rec[2])
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func readLines(r io.Reader, defaultBody, defaultAttachment string) ([]Task, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tasks []Task
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, Task{
			Identifier: line,
			Body:       defaultBody,
			Attachment: defaultAttachment,
		})
	}
	return tasks, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "phone", "number", "identifier", "recipient", "to":
		return true
	}
	return false
}
