package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"soundloom/internal/api"
	"soundloom/internal/library"
)

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid run id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func bulkClearLabel(all, completed, failed bool) string {
	switch {
	case completed:
		return "completed runs"
	case failed:
		return "failed runs"
	case all:
		return "runs"
	default:
		return "runs"
	}
}

func printRunRetryResult(out io.Writer, result api.RetryRunsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.RetryRunNotFound:
			fmt.Fprintf(out, "Run %d not found\n", item.ID)
		case api.RetryRunNotFailed:
			fmt.Fprintf(out, "Run %d is not in a retryable state (only failed runs can be retried)\n", item.ID)
		case api.RetryRunUpdated:
			fmt.Fprintf(out, "Run %d reset for retry\n", item.ID)
		}
	}
}

func printRunStopResult(out io.Writer, result api.StopRunsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.StopRunNotFound:
			fmt.Fprintf(out, "Run %d not found\n", item.ID)
		case api.StopRunAlreadyCompleted:
			fmt.Fprintf(out, "Run %d is already completed\n", item.ID)
		case api.StopRunAlreadyFailed:
			fmt.Fprintf(out, "Run %d is already failed\n", item.ID)
		case api.StopRunUpdated:
			if statusIsInFlight(item.PriorStatus) {
				statusLabel := formatStatusLabel(item.PriorStatus)
				fmt.Fprintf(out, "Run %d stop requested (currently %s; will halt after current stage)\n", item.ID, statusLabel)
				continue
			}
			fmt.Fprintf(out, "Run %d stopped and parked for review\n", item.ID)
		}
	}
}

func printRunRemoveResult(out io.Writer, result api.RemoveRunsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.RemoveRunNotFound:
			fmt.Fprintf(out, "Run %d not found\n", item.ID)
		case api.RemoveRunRemoved:
			fmt.Fprintf(out, "Run %d removed\n", item.ID)
		}
	}
}

func statusIsInFlight(value string) bool {
	status, ok := library.ParseStatus(value)
	if !ok {
		return false
	}
	switch status {
	case library.StatusProducing, library.StatusMixing:
		return true
	default:
		return false
	}
}
