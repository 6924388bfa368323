package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"soundloom/internal/api"
)

func newAlignCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align <textID>",
		Short: "Combine a text's narration and refresh its word timestamps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			textID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || textID <= 0 {
				return fmt.Errorf("invalid text id %q", args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.workflowLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			result, err := api.AlignText(cmd.Context(), api.AlignTextRequest{
				Config: cfg,
				TextID: textID,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"text_id":  result.TextID,
					"combined": result.CombinedPath,
					"segments": result.SegmentCount,
					"words":    result.WordCount,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Combined %d segments into %s\n", result.SegmentCount, result.CombinedPath)
			fmt.Fprintf(out, "Aligned %d words\n", result.WordCount)
			return nil
		},
	}
	return cmd
}
