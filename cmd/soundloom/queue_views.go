package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"soundloom/internal/api"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildRunListRows(items []api.RunItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := api.SortRunsNewestFirst(items)

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = fmt.Sprintf("Text %d", item.TextID)
		}
		stage := strings.TrimSpace(item.Progress.Stage)
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			title,
			formatStatusLabel(item.Status),
			stage,
			formatDisplayTime(item.CreatedAt),
		})
	}
	return rows
}

func printRunDetail(out io.Writer, run api.RunItem) {
	title := strings.TrimSpace(run.Title)
	if title == "" {
		title = fmt.Sprintf("Text %d", run.TextID)
	}
	fmt.Fprintf(out, "Run %d: %s\n", run.ID, title)
	fmt.Fprintf(out, "  Status:   %s\n", formatStatusLabel(run.Status))
	if lane := strings.TrimSpace(run.ProcessingLane); lane != "" {
		fmt.Fprintf(out, "  Lane:     %s\n", lane)
	}
	if stage := strings.TrimSpace(run.Progress.Stage); stage != "" {
		fmt.Fprintf(out, "  Stage:    %s (%.0f%%)\n", stage, run.Progress.Percent)
	}
	if message := strings.TrimSpace(run.Progress.Message); message != "" {
		fmt.Fprintf(out, "  Progress: %s\n", message)
	}
	fmt.Fprintf(out, "  Created:  %s\n", formatDisplayTime(run.CreatedAt))
	fmt.Fprintf(out, "  Updated:  %s\n", formatDisplayTime(run.UpdatedAt))
	if run.CombinedFile != "" {
		fmt.Fprintf(out, "  Combined: %s\n", run.CombinedFile)
	}
	if run.MixedFile != "" {
		fmt.Fprintf(out, "  Mixed:    %s\n", run.MixedFile)
	}
	if run.DurationSeconds > 0 {
		fmt.Fprintf(out, "  Duration: %.1fs\n", run.DurationSeconds)
	}
	if run.NeedsReview {
		reason := strings.TrimSpace(run.ReviewReason)
		if reason == "" {
			reason = "unspecified"
		}
		fmt.Fprintf(out, "  Review:   %s\n", reason)
	}
	if msg := strings.TrimSpace(run.ErrorMessage); msg != "" {
		fmt.Fprintf(out, "  Error:    %s\n", msg)
	}
	for _, deg := range run.Degradations {
		fmt.Fprintf(out, "  Degraded: %s (%s)\n", deg.Step, deg.Reason)
	}
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := api.ParseQueueTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}
