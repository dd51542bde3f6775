package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/enclavecheck/internal/audit"
	"github.com/ppiankov/enclavecheck/internal/store"
)

var (
	historyJournal string
	historyStore   string
	historyStatus  string
	historySince   time.Duration
	historyLimit   int
	historyFormat  string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	f := historyCmd.Flags()
	f.StringVar(&historyJournal, "journal", "", "Journal to read (default from config)")
	f.StringVar(&historyStore, "store", "", "Read the SQLite archive instead of the journal")
	f.StringVar(&historyStatus, "status", "", "Only runs with this status (satisfiable|unsatisfiable)")
	f.DurationVar(&historySince, "since", 0, "Only runs newer than this (e.g. 24h)")
	f.IntVarP(&historyLimit, "limit", "n", 20, "Number of recent runs to show (0 for all)")
	f.StringVarP(&historyFormat, "format", "f", "text", "Output format (text|json)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past verification runs",
	Long:  "Lists recorded runs from the journal, or from the SQLite archive with --store.",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyStore != "" {
		return storeHistory(cmd, historyStore)
	}
	path := historyJournal
	if path == "" {
		path = cfg.Journal
	}
	if path == "" {
		if cfg.Store != "" {
			return storeHistory(cmd, cfg.Store)
		}
		return fmt.Errorf("no journal configured; pass --journal or --store")
	}

	f := audit.Filter{Status: historyStatus, Limit: historyLimit}
	if historySince > 0 {
		f.Since = time.Now().Add(-historySince)
	}
	h, err := audit.Read(path, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch historyFormat {
	case "json":
		s, err := audit.FormatJSON(h)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, audit.FormatText(h))
	}
	return nil
}

func storeHistory(cmd *cobra.Command, path string) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.Runs(cmd.Context(), 0)
	if err != nil {
		return err
	}
	var since time.Time
	if historySince > 0 {
		since = time.Now().Add(-historySince)
	}
	var kept []store.Run
	for _, r := range runs {
		if historyStatus != "" && !strings.EqualFold(historyStatus, string(r.Status)) {
			continue
		}
		if !since.IsZero() && r.StartedAt.Before(since) {
			continue
		}
		kept = append(kept, r)
		if historyLimit > 0 && len(kept) == historyLimit {
			break
		}
	}

	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		data, err := json.MarshalIndent(kept, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal runs: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(kept) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-24s %-36s %-9s %-14s %6s %5s\n", "TIME", "RUN", "BACKEND", "STATUS", "CONSTR", "CORE")
	for _, r := range kept {
		fmt.Fprintf(out, "%-24s %-36s %-9s %-14s %6d %5d\n",
			r.StartedAt.UTC().Format(audit.TimestampFormat), r.ID, r.Backend, r.Status, r.Constraints, r.CoreSize)
	}
	return nil
}
