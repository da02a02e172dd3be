package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"venue-intel-pipeline/internal/models"
)

// Render writes the report as operator-facing plain text. Sections with no
// data are dropped rather than rendered empty.
func (r *Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "VENUE INTELLIGENCE REPORT  %s\n", r.Date)
	fmt.Fprintf(w, "generated %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))

	if r.Manifest != nil {
		fmt.Fprintf(w, "\nRUN %s  %s\n", r.Manifest.RunID, strings.ToUpper(r.Manifest.Status))
		tw := newTab(w)
		fmt.Fprintln(tw, "STEP\tSTATUS\tITEMS\tDURATION\tREASON")
		for _, s := range r.Steps {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Step, s.Status, s.Items, s.Duration, s.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if d := r.Delta; d != nil {
		fmt.Fprintf(w, "\nDELTA %s", d.Date)
		if d.PreviousDate != "" {
			fmt.Fprintf(w, " (vs %s)", d.PreviousDate)
		}
		fmt.Fprintf(w, "\nnew %d  changed %d  unchanged %d\n", len(d.New), len(d.Changed), len(d.Unchanged))
		if d.Summary != "" {
			fmt.Fprintln(w, d.Summary)
		}
	}

	if len(r.SpotCounts) > 0 {
		fmt.Fprintf(w, "\nSPOTS\n%s\n", formatCounts(r.SpotCounts))
	}
	if g := r.Gold; g != nil {
		fmt.Fprintf(w, "\nGOLD\ntotal %d  with offers %d  needs llm %d\n", g.Total, g.Found, g.NeedsLLM)
	}

	if len(r.Runs) > 0 {
		fmt.Fprintf(w, "\nRUN HISTORY\n")
		tw := newTab(w)
		fmt.Fprintln(tw, "RUN\tDATE\tSTATUS\tDURATION")
		for _, run := range r.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", run.RunID, run.Date, run.Status, run.Duration)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Actions) > 0 {
		fmt.Fprintf(w, "\nATTENTION\n")
		for _, sev := range []string{SeverityHigh, SeverityMedium, SeverityLow} {
			for _, a := range r.Actions {
				if a.Severity == sev {
					fmt.Fprintf(w, "[%s]\t%s\n", sev, a.Message)
				}
			}
		}
	}

	if len(r.Streaks) > 0 {
		fmt.Fprintf(w, "\nSTREAK LEADERS\n")
		tw := newTab(w)
		fmt.Fprintln(tw, "VENUE\tNAME\tTYPE\tSTREAK\tLAST SEEN")
		for _, s := range r.Streaks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.VenueID, s.Name, s.Type, s.Streak, s.LastDate)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Curation) > 0 {
		fmt.Fprintf(w, "\nCURATION (last 24h)\n")
		tw := newTab(w)
		fmt.Fprintln(tw, "TIME\tACTION\tSUBJECT\tACTOR")
		for _, c := range r.Curation {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.At.UTC().Format("15:04"), c.Type, c.Subject, c.Actor)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	return nil
}

// formatCounts renders a status histogram with the well-known statuses first.
func formatCounts(counts map[string]int) string {
	order := []string{models.SpotApproved, models.SpotPending, models.SpotDenied}
	seen := map[string]bool{}
	var parts []string
	for _, k := range order {
		if n, ok := counts[k]; ok {
			parts = append(parts, fmt.Sprintf("%s %d", k, n))
			seen[k] = true
		}
	}
	var rest []string
	for k := range counts {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, "  ")
}

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}
