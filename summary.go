package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go_batchgen/batch"
	"go_batchgen/credentials"
	"go_batchgen/db"
	"go_batchgen/metrics"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, s batch.Summary, interrupted bool) {
	header := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	header.Fprintln(w, "━━━ Batch Summary ━━━")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Run:        %s\n", s.RunID)
	fmt.Fprintf(w, "  Prompts:    %d across %d worker(s) in %v\n",
		s.PromptCount, s.WorkerCount, s.Duration.Round(time.Millisecond))
	color.New(color.FgGreen).Fprintf(w, "  Succeeded:  %d (%d image(s))\n", s.SuccessCount, len(s.Images))
	if s.FailedCount > 0 {
		color.New(color.FgRed).Fprintf(w, "  Failed:     %d\n", s.FailedCount)
	} else {
		fmt.Fprintf(w, "  Failed:     0\n")
	}
	if s.BreakersTripped > 0 {
		color.New(color.FgYellow).Fprintf(w, "  Stopped:    %d worker(s) hit repeated rate limits or rejected tokens\n", s.BreakersTripped)
	}
	if s.RemainingPromptCount >= 0 {
		fmt.Fprintf(w, "  Remaining:  %d prompt(s) still pending\n", s.RemainingPromptCount)
	} else {
		color.New(color.FgYellow).Fprintf(w, "  Remaining:  unknown (prompts file could not be re-read)\n")
	}
	if interrupted {
		color.New(color.FgYellow, color.Bold).Fprintln(w, "  Interrupted; pending prompts are kept for the next run")
	}
	fmt.Fprintln(w)
}

// printTokenStats writes one row per token used during the run.
func printTokenStats(w io.Writer, stats []metrics.TokenStats) {
	if len(stats) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  TOKEN\tATTEMPTS\tOK\tRATE LIMITED\tUNAUTHORIZED\tOTHER\tTRANSPORT\tSUCCESS\tAVG")
	for _, s := range stats {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%d\t%d\t%.0f%%\t%v\n",
			s.TokenName, s.Attempts, s.Successes, s.RateLimited, s.Unauthorized,
			s.OtherErrors, s.TransportErrors, s.SuccessRate(), s.AvgDuration().Round(time.Millisecond))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printTokens(w io.Writer, tokens []credentials.Token) {
	if len(tokens) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No tokens configured. Add one with `batchgen tokens add <name> <token>`.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, t := range tokens {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, t.Name, credentials.MaskSecret(t.Secret))
	}
	tw.Flush()
}

func printRuns(w io.Writer, runs []db.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPROVIDER\tPROMPTS\tOK\tFAILED\tREMAINING\tDURATION")
	for _, r := range runs {
		remaining := "?"
		if r.RemainingCount >= 0 {
			remaining = fmt.Sprint(r.RemainingCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%v\n",
			r.RunID, humanize.Time(r.StartedAt), r.Provider, r.PromptCount,
			r.SuccessCount, r.FailedCount, remaining, r.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}

func printRunDetail(w io.Writer, runID string, results []db.PromptResultRow, attempts []db.AttemptRow) {
	if len(results) == 0 && len(attempts) == 0 {
		fmt.Fprintf(w, "No records for run %s.\n", runID)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSTATUS\tREASON\tATTEMPTS\tIMAGES\tPROMPT")
	for _, r := range results {
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", r.WorkerID, r.Status, reason, r.Attempts, r.Images, r.Prompt)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d attempt(s) recorded\n", len(attempts))
}
