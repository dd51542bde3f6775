package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	sets := filterSets(r.Changes)
	fields := filterChanges(r.Changes, "labels.")

	if len(sets) > 0 {
		b.WriteString("\n")
		for _, c := range sets {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "  %s: + %s\n", c.Field, c.New)
			case "removed":
				fmt.Fprintf(&b, "  %s: - %s\n", c.Field, c.Old)
			}
		}
	}

	if len(fields) > 0 {
		b.WriteString("\n  Labels:\n")
		for _, c := range fields {
			name := strings.TrimPrefix(c.Field, "labels.")
			fmt.Fprintf(&b, "    %-24s %s → %s\n", name+":", c.Old, c.New)
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Flow rules:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s", rc.Rule)
				if rc.Comment != "" {
					fmt.Fprintf(&b, "  (%s)", rc.Comment)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterChanges(changes []Change, prefix string) []Change {
	var out []Change
	for _, c := range changes {
		if strings.HasPrefix(c.Field, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func filterSets(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if !strings.Contains(c.Field, ".") {
			out = append(out, c)
		}
	}
	return out
}
