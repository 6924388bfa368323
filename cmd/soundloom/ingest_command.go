package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"soundloom/internal/api"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var title string
	var segmentsDir string
	var cuesPath string
	var musicPrompt string

	cmd := &cobra.Command{
		Use:   "ingest <text-file>",
		Short: "Load a text and its narration segments into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.workflowLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			result, err := api.IngestText(cmd.Context(), api.IngestTextRequest{
				Config:      cfg,
				Title:       title,
				BodyPath:    args[0],
				SegmentsDir: segmentsDir,
				CuesPath:    cuesPath,
				MusicPrompt: musicPrompt,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				payload := map[string]any{
					"text_id":  result.TextID,
					"title":    result.Title,
					"segments": result.SegmentCount,
					"cues":     result.CueCount,
				}
				if result.AdvisedCueLimit > 0 {
					payload["advised_cue_limit"] = result.AdvisedCueLimit
				}
				return writeJSON(cmd, payload)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %q as text %d\n", result.Title, result.TextID)
			if result.SegmentCount > 0 {
				fmt.Fprintf(out, "Stored %d speech segments\n", result.SegmentCount)
			}
			if result.CueCount > 0 {
				fmt.Fprintf(out, "Stored %d effect cues\n", result.CueCount)
			}
			if result.AdvisedCueLimit > 0 {
				fmt.Fprintf(out, "Warning: %d cues exceeds the advised limit of %d for this text length\n", result.CueCount, result.AdvisedCueLimit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title for the text (defaults to the opening words)")
	cmd.Flags().StringVar(&segmentsDir, "segments", "", "Directory of ordered narration audio files")
	cmd.Flags().StringVar(&cuesPath, "cues", "", "JSON cue sheet with effect prompts and word ranges")
	cmd.Flags().StringVar(&musicPrompt, "music-prompt", "", "Background music generation prompt")
	return cmd
}
