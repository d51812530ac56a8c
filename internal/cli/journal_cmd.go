package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/internal/journal"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	journalLimit  int
	journalOffset int
	journalKind   string
	journalOp     string
	journalParty  string
	journalRoom   string
	journalStatus string
	journalSince  string
	journalOldest bool
	journalJSON   bool
	journalMaxAge string
	journalMaxN   int
)

// --- Journal 命令组 ---

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the local event journal",
	Long: `View and manage the local journal.
Gateway events seen by watch, REST actions and uploads are recorded here.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := journal.Query{
			Kind:    journal.Kind(journalKind),
			Op:      journalOp,
			PartyID: journalParty,
			RoomID:  journalRoom,
			Status:  journalStatus,
			Oldest:  journalOldest,
			Limit:   journalLimit,
			Offset:  journalOffset,
		}
		if journalSince != "" {
			since, err := parseSince(journalSince, time.Now())
			if err != nil {
				return err
			}
			q.Since = since
		}
		return listJournal(cmd.OutOrStdout(), q, "")
	},
}

var journalSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search payloads and errors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return listJournal(cmd.OutOrStdout(), journal.Query{
			Search: query,
			Limit:  journalLimit,
			Offset: journalOffset,
		}, query)
	},
}

var journalGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one entry with its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry ID: %s", args[0])
		}
		store, err := journal.Open(app.cfg.JournalPath())
		if err != nil {
			return err
		}
		defer store.Close()

		e, err := store.Get(id)
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		if e == nil {
			return fmt.Errorf("entry #%d not found", id)
		}
		data, _ := json.MarshalIndent(e, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := journal.Open(app.cfg.JournalPath())
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		out := cmd.OutOrStdout()
		if journalJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		writeStats(out, stats, store.Path())
		return nil
	},
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge := config.Duration(journalMaxAge, 30*24*time.Hour)
		store, err := journal.Open(app.cfg.JournalPath())
		if err != nil {
			return err
		}
		defer store.Close()

		deleted, err := store.Prune(maxAge, journalMaxN)
		if err != nil {
			return fmt.Errorf("prune journal: %w", err)
		}
		out := cmd.OutOrStdout()
		if deleted == 0 {
			fmt.Fprintln(out, "No entries to prune.")
		} else {
			printSuccess(out, fmt.Sprintf("Pruned %d entries (max-age=%s, max-entries=%d)", deleted, maxAge, journalMaxN))
		}
		return nil
	},
}

func init() {
	journalListCmd.Flags().IntVar(&journalLimit, "limit", 20, "Max entries to return")
	journalListCmd.Flags().IntVar(&journalOffset, "offset", 0, "Offset for pagination")
	journalListCmd.Flags().StringVar(&journalKind, "kind", "", "Filter by kind: gateway, rest, upload, session")
	journalListCmd.Flags().StringVar(&journalOp, "op", "", "Filter by op, e.g. MessageCreate")
	journalListCmd.Flags().StringVar(&journalParty, "party", "", "Filter by party ID")
	journalListCmd.Flags().StringVar(&journalRoom, "room", "", "Filter by room ID")
	journalListCmd.Flags().StringVar(&journalStatus, "status", "", "Filter by status: ok, error")
	journalListCmd.Flags().StringVar(&journalSince, "since", "", "Entries newer than a duration (1h) or RFC3339 time")
	journalListCmd.Flags().BoolVar(&journalOldest, "oldest", false, "Oldest first")

	journalSearchCmd.Flags().IntVar(&journalLimit, "limit", 20, "Max results")
	journalSearchCmd.Flags().IntVar(&journalOffset, "offset", 0, "Offset")

	journalStatsCmd.Flags().BoolVar(&journalJSON, "json", false, "Print as JSON")

	journalPruneCmd.Flags().StringVar(&journalMaxAge, "max-age", "720h", "Delete entries older than this")
	journalPruneCmd.Flags().IntVar(&journalMaxN, "max-entries", 100000, "Max entries to keep")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalGetCmd)
	journalCmd.AddCommand(journalSearchCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalPruneCmd)
}

func listJournal(out io.Writer, q journal.Query, search string) error {
	store, err := journal.Open(app.cfg.JournalPath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, total, err := store.List(q)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries found.")
		return nil
	}

	if search != "" {
		fmt.Fprintf(out, "Search results for %q (%d/%d):\n\n", search, len(entries), total)
	} else {
		fmt.Fprintf(out, "Journal entries (%d/%d):\n\n", len(entries), total)
	}
	for _, e := range entries {
		writeEntry(out, e)
	}
	if total > q.Offset+len(entries) {
		fmt.Fprintf(out, "\n  ... %d more entries. Use --offset %d to see next page.\n", total-q.Offset-len(entries), q.Offset+len(entries))
	}
	return nil
}

func writeEntry(out io.Writer, e journal.Entry) {
	status := styleSuccess.Render(e.Status)
	if e.Status == "error" {
		status = styleError.Render(e.Status)
	}
	fmt.Fprintf(out, "  #%-6d [%s] %-8s %-16s %s\n", e.ID, formatEntryTime(e.CreatedAt), e.Kind, e.Op, status)
	var scope []string
	for _, kv := range [][2]string{{"party", e.PartyID}, {"room", e.RoomID}, {"user", e.UserID}} {
		if kv[1] != "" {
			scope = append(scope, kv[0]+"="+kv[1])
		}
	}
	if len(scope) > 0 {
		fmt.Fprintf(out, "          %s\n", styleMuted.Render(strings.Join(scope, " ")))
	}
	if e.Error != "" {
		fmt.Fprintf(out, "          err: %s\n", truncate(e.Error, 80))
	} else if e.Payload != "" {
		fmt.Fprintf(out, "          %s\n", truncate(e.Payload, 80))
	}
	if e.DurationMs > 0 {
		fmt.Fprintf(out, "          duration: %dms\n", e.DurationMs)
	}
}

func writeStats(out io.Writer, stats *journal.Stats, path string) {
	fmt.Fprintln(out, styleTitle.Render("Journal Statistics"))
	fmt.Fprintf(out, "  Total entries:  %d\n", stats.Total)
	fmt.Fprintf(out, "  Errors:         %d\n", stats.Errors)
	if stats.Earliest != "" {
		fmt.Fprintf(out, "  Earliest:       %s\n", formatEntryTime(stats.Earliest))
	}
	if stats.Latest != "" {
		fmt.Fprintf(out, "  Latest:         %s\n", formatEntryTime(stats.Latest))
	}
	for _, group := range []struct {
		title string
		m     map[string]int
	}{{"By Kind", stats.ByKind}, {"By Op", stats.ByOp}} {
		if len(group.m) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n  %s:\n", group.title)
		keys := make([]string, 0, len(group.m))
		for k := range group.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "    %-16s %d\n", k, group.m[k])
		}
	}
	fmt.Fprintf(out, "\n  Database: %s\n", path)
}

// parseSince accepts a lookback duration or an absolute RFC3339 time.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: use a duration like 2h or an RFC3339 time", v)
	}
	return t, nil
}

func formatEntryTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("01-02 15:04:05")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// restScope names what a REST action touched, for journal filters.
type restScope struct {
	party, room models.Snowflake
}

// recordREST journals one REST action. Journal failures never fail the command.
func recordREST(cfg *config.Config, op string, scope restScope, start time.Time, err error) {
	record(cfg, &journal.Entry{
		Kind:       journal.KindREST,
		Op:         op,
		PartyID:    snowflakeString(scope.party),
		RoomID:     snowflakeString(scope.room),
		DurationMs: time.Since(start).Milliseconds(),
		Error:      errString(err),
	})
}

func record(cfg *config.Config, e *journal.Entry) {
	if !cfg.Journal.Enabled {
		return
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		app.logger.Warn("journal unavailable", "err", err)
		return
	}
	defer store.Close()
	if err := store.Record(e); err != nil {
		app.logger.Warn("journal record failed", "op", e.Op, "err", err)
	}
}

func snowflakeString(id models.Snowflake) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
