package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	Status string
	Since  time.Time
	Limit  int
}

// Summary counts verdicts over the selected entries.
type Summary struct {
	Total         int    `json:"total"`
	Satisfiable   int    `json:"satisfiable"`
	Unsatisfiable int    `json:"unsatisfiable"`
	First         string `json:"first,omitempty"`
	Last          string `json:"last,omitempty"`
}

// History is the filtered view of a journal, oldest first.
type History struct {
	Entries []RunEntry `json:"entries"`
	Summary Summary    `json:"summary"`
}

// Read returns the entries of the journal at path that match f. Malformed
// lines are skipped; Verify is the place to find them. With a limit only
// the most recent matches are kept.
func Read(path string, f Filter) (*History, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	defer file.Close()

	h := &History{}
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if f.Status != "" && !strings.EqualFold(f.Status, e.Status) {
			continue
		}
		if !f.Since.IsZero() {
			ts, err := time.Parse(TimestampFormat, e.Timestamp)
			if err != nil || ts.Before(f.Since) {
				continue
			}
		}
		h.Entries = append(h.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read journal: %w", err)
	}
	if f.Limit > 0 && len(h.Entries) > f.Limit {
		h.Entries = h.Entries[len(h.Entries)-f.Limit:]
	}
	for _, e := range h.Entries {
		h.Summary.add(e)
	}
	return h, nil
}

func (s *Summary) add(e RunEntry) {
	s.Total++
	switch e.Status {
	case "SATISFIABLE":
		s.Satisfiable++
	case "UNSATISFIABLE":
		s.Unsatisfiable++
	}
	if s.First == "" {
		s.First = e.Timestamp
	}
	s.Last = e.Timestamp
}

// FormatText renders a history as a table.
func FormatText(h *History) string {
	if len(h.Entries) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-36s %-9s %-14s %6s %5s\n", "TIME", "RUN", "BACKEND", "STATUS", "CONSTR", "CORE")
	for _, e := range h.Entries {
		fmt.Fprintf(&b, "%-24s %-36s %-9s %-14s %6d %5d\n",
			e.Timestamp, e.RunID, e.Backend, e.Status, e.Constraints, e.CoreSize)
	}
	fmt.Fprintf(&b, "\n%d runs: %d satisfiable, %d unsatisfiable.\n",
		h.Summary.Total, h.Summary.Satisfiable, h.Summary.Unsatisfiable)
	return b.String()
}

// FormatJSON renders a history as indented JSON.
func FormatJSON(h *History) (string, error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}
