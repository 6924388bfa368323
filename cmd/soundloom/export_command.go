package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"soundloom/internal/api"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var allowDuplicate bool

	cmd := &cobra.Command{
		Use:   "export <textID>",
		Short: "Queue a text for assembly and mixdown",
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
			result, err := api.ExportText(cmd.Context(), api.ExportTextRequest{
				Config:         cfg,
				TextID:         textID,
				AllowDuplicate: allowDuplicate,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"run_id":  result.RunID,
					"text_id": result.TextID,
					"title":   result.Title,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued run %d for %q\n", result.RunID, result.Title)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowDuplicate, "allow-duplicate", false, "Queue another run even if one is already active for the text")
	return cmd
}
