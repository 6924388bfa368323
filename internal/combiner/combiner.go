package combiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"soundloom/internal/config"
	"soundloom/internal/fileutil"
	"soundloom/internal/library"
	"soundloom/internal/logging"
)

// ErrNoAudioSegments indicates a text has no segments carrying audio, so
// there is nothing to combine.
var ErrNoAudioSegments = errors.New("no speech segments with audio")

// Aligner produces word timestamps for a combined track. The combiner treats
// alignment as best-effort; a nil Aligner disables it entirely.
type Aligner interface {
	Align(ctx context.Context, audioPath, referenceText string) ([]library.WordTimestamp, error)
}

// Result reports what a combine produced.
type Result struct {
	// CombinedPath is the staged combined speech file.
	CombinedPath string
	// SegmentCount is the number of segments stitched together.
	SegmentCount int
	// SkippedCount is the number of segments skipped for missing audio.
	SkippedCount int
	// Aligned reports whether word timestamps were refreshed.
	Aligned bool
	// WordCount is the number of word timestamps persisted.
	WordCount int
}

// Service combines per-segment speech audio into one track.
type Service struct {
	store         *library.Store
	cfg           *config.Config
	aligner       Aligner
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a combiner backed by the given store and configuration.
func NewService(store *library.Store, cfg *config.Config, aligner Aligner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:   store,
		cfg:     cfg,
		aligner: aligner,
		logger:  logger.With(logging.String(logging.FieldComponent, "combiner")),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Combine stitches the text's segments into one staged file and refreshes
// the text's word timestamps. Stored timestamps are cleared before alignment
// runs so a failed alignment surfaces as an absent sequence rather than a
// stale one.
func (s *Service) Combine(ctx context.Context, text *library.Text) (*Result, error) {
	if text == nil {
		return nil, errors.New("combine: text required")
	}

	segments, err := s.store.SpeechSegments(ctx, text.ID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, ErrNoAudioSegments
	}

	scratchDir, err := os.MkdirTemp(s.cfg.Paths.StagingDir, fmt.Sprintf("combine-%d-*", text.ID))
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	result := &Result{}
	segmentPaths := make([]string, 0, len(segments))
	for _, segment := range segments {
		if len(segment.Audio) == 0 {
			result.SkippedCount++
			s.logger.Warn("segment has no audio, skipping",
				logging.Int64(logging.FieldTextID, text.ID),
				logging.Int("sequence", segment.Sequence))
			continue
		}
		path := filepath.Join(scratchDir, fmt.Sprintf("segment_%03d.mp3", segment.Sequence))
		if err := fileutil.WriteFileAtomic(path, segment.Audio); err != nil {
			return nil, fmt.Errorf("materialize segment %d: %w", segment.Sequence, err)
		}
		segmentPaths = append(segmentPaths, path)
	}
	if len(segmentPaths) == 0 {
		return nil, ErrNoAudioSegments
	}
	result.SegmentCount = len(segmentPaths)

	silencePath := ""
	gap := s.cfg.Mix.SegmentSilenceGap
	if gap > 0 && len(segmentPaths) > 1 {
		silencePath = filepath.Join(scratchDir, "silence.mp3")
		if err := s.synthesizeSilence(ctx, silencePath, gap); err != nil {
			return nil, fmt.Errorf("synthesize silence: %w", err)
		}
	}

	listPath := filepath.Join(scratchDir, "filelist.txt")
	if err := writeConcatList(listPath, segmentPaths, silencePath); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	combinedPath := filepath.Join(s.cfg.Paths.StagingDir,
		fmt.Sprintf("combined_speech_%d_%d.mp3", text.ID, time.Now().Unix()))
	if err := s.run(ctx, s.cfg.FFmpegBinary(),
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		combinedPath,
	); err != nil {
		return nil, fmt.Errorf("concat segments: %w", err)
	}
	result.CombinedPath = combinedPath

	s.logger.Info("combined speech segments",
		logging.Int64(logging.FieldTextID, text.ID),
		logging.Int("segments", result.SegmentCount),
		logging.Int("skipped", result.SkippedCount),
		logging.String("output", combinedPath))

	s.refreshAlignment(ctx, text, combinedPath, result)
	return result, nil
}

// refreshAlignment clears stored timestamps and replaces them with a fresh
// alignment of the combined file. Segment boundaries can change between
// combines, so prior timestamps are never trusted.
func (s *Service) refreshAlignment(ctx context.Context, text *library.Text, combinedPath string, result *Result) {
	if err := s.store.ReplaceWordTimestamps(ctx, text.ID, nil); err != nil {
		s.logger.Warn("failed to clear stale word timestamps",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Error(err))
	}
	if s.aligner == nil {
		s.logger.Info("alignment disabled, skipping word timestamps",
			logging.Int64(logging.FieldTextID, text.ID))
		return
	}

	timestamps, err := s.aligner.Align(ctx, combinedPath, text.Body)
	if err != nil {
		s.logger.Warn("alignment failed, continuing without word timestamps",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Error(err))
		return
	}
	if err := s.store.ReplaceWordTimestamps(ctx, text.ID, timestamps); err != nil {
		s.logger.Warn("failed to persist word timestamps",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Error(err))
		return
	}
	result.Aligned = true
	result.WordCount = len(timestamps)
	s.logger.Info("word timestamps refreshed",
		logging.Int64(logging.FieldTextID, text.ID),
		logging.Int("words", len(timestamps)))
}

// synthesizeSilence renders one silence clip matching the configured gap.
// The clip is referenced N-1 times in the concat list rather than rendered
// per gap.
func (s *Service) synthesizeSilence(ctx context.Context, path string, gap float64) error {
	return s.run(ctx, s.cfg.FFmpegBinary(),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo:d=%g", s.cfg.Mix.SampleRate, gap),
		"-c:a", "libmp3lame",
		"-y",
		path,
	)
}

// writeConcatList writes the concat demuxer file list, interleaving the
// silence clip between consecutive segments but never after the last.
func writeConcatList(listPath string, segmentPaths []string, silencePath string) error {
	var b strings.Builder
	for i, path := range segmentPaths {
		fmt.Fprintf(&b, "file '%s'\n", path)
		if silencePath != "" && i < len(segmentPaths)-1 {
			fmt.Fprintf(&b, "file '%s'\n", silencePath)
		}
	}
	return os.WriteFile(listPath, []byte(b.String()), 0o644)
}

// run executes a command, using the custom runner if set. Real invocations
// are bounded by the configured tool timeout.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
