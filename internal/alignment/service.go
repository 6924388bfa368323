package alignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"soundloom/internal/fileutil"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/textutil"
)

// Sentinel errors distinguishing a missing aligner from a failed run.
var (
	// ErrUnavailable indicates the WhisperX toolchain could not be launched.
	ErrUnavailable = errors.New("alignment unavailable")
	// ErrFailed indicates WhisperX ran but produced no usable word timings.
	ErrFailed = errors.New("alignment failed")
)

// referenceSimilarityFloor is the cosine similarity below which the aligned
// transcript is logged as drifting from the source text.
const referenceSimilarityFloor = 0.8

// Config captures runtime settings for WhisperX alignment runs.
type Config struct {
	// Model is the WhisperX model to use (e.g., "small").
	Model string
	// Device selects the inference device ("cpu" or "cuda").
	Device string
	// ComputeType selects the inference precision (e.g., "int8").
	ComputeType string
	// Language is the ISO-639-1 language code of the narration.
	Language string
	// WorkDir is where WhisperX output files are staged.
	WorkDir string
	// CacheDir stores alignment results keyed by audio content; empty
	// disables result caching.
	CacheDir string
}

// WhisperX invocation constants.
const (
	DefaultModel = "small"
	PypiIndexURL = "https://pypi.org/simple"
	CUDAIndexURL = "https://download.pytorch.org/whl/cu128"
	BatchSize    = "4"
	OutputFormat = "json"
	CPUDevice    = "cpu"
	CUDADevice   = "cuda"
	UVXCommand   = "uvx"
)

// Service runs WhisperX forced alignment over combined speech tracks.
type Service struct {
	cfg           Config
	uvxBinary     string
	logger        *slog.Logger
	cache         *Cache
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates an alignment service with the given configuration.
func NewService(cfg Config, uvxBinary string, logger *slog.Logger) *Service {
	if uvxBinary == "" {
		uvxBinary = UVXCommand
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:       cfg,
		uvxBinary: uvxBinary,
		logger:    logger,
		cache:     NewCache(cfg.CacheDir, logger),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Align transcribes the audio file with word-level timings and returns the
// chronological word sequence. referenceText is the narration the audio was
// generated from; it is used only for a drift diagnostic, never to correct
// timings, because consumers rely on position rather than lexical match.
func (s *Service) Align(ctx context.Context, audioPath, referenceText string) ([]library.WordTimestamp, error) {
	audioPath = strings.TrimSpace(audioPath)
	if audioPath == "" {
		return nil, fmt.Errorf("%w: audio path required", ErrFailed)
	}

	cacheKey := ""
	if hash, err := fileutil.HashFile(audioPath); err == nil {
		cacheKey = hash
		if words, ok := s.cache.Lookup(cacheKey, s.Model(), s.cfg.Language); ok {
			s.logger.Debug("alignment cache hit",
				logging.String("audio", filepath.Base(audioPath)),
				logging.Int("word_count", len(words)))
			return words, nil
		}
	}

	workDir := s.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure work dir: %w", ErrUnavailable, err)
	}
	outputDir, err := os.MkdirTemp(workDir, "align-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrUnavailable, err)
	}
	defer os.RemoveAll(outputDir)

	args := s.buildArgs(audioPath, outputDir)
	if err := s.run(ctx, s.uvxBinary, args...); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFailed, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	timestamps, err := loadWordTimestamps(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailed, err)
	}
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("%w: no word timings in output", ErrFailed)
	}

	if cacheKey != "" {
		if err := s.cache.Store(cacheKey, s.Model(), s.cfg.Language, timestamps); err != nil {
			s.logger.Warn("failed to persist alignment cache entry", logging.Error(err))
		}
	}

	s.checkReferenceDrift(timestamps, referenceText)
	return timestamps, nil
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 20)

	device := s.cfg.Device
	if device == "" {
		device = CPUDevice
	}
	if device == CUDADevice {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	)

	if language := strings.TrimSpace(s.cfg.Language); language != "" {
		args = append(args, "--language", language)
	}

	if device == CUDADevice {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice)
		if computeType := strings.TrimSpace(s.cfg.ComputeType); computeType != "" {
			args = append(args, "--compute_type", computeType)
		}
	}

	return args
}

// checkReferenceDrift warns when the aligned transcript diverges from the
// source narration. Drift usually means a segment was skipped or the model
// transcribed noise; cue placement still works but may land off-word.
func (s *Service) checkReferenceDrift(timestamps []library.WordTimestamp, referenceText string) {
	if strings.TrimSpace(referenceText) == "" {
		return
	}
	words := make([]string, 0, len(timestamps))
	for _, ts := range timestamps {
		words = append(words, ts.Word)
	}
	aligned := textutil.NewFingerprint(textutil.ReferenceText(words))
	reference := textutil.NewFingerprint(referenceText)
	if aligned == nil || reference == nil {
		return
	}
	similarity := textutil.CosineSimilarity(aligned, reference)
	if similarity < referenceSimilarityFloor {
		s.logger.Warn("aligned transcript drifts from source text",
			logging.Float64("similarity", similarity),
			logging.Int("aligned_words", len(timestamps)),
			logging.Int("reference_words", textutil.WordCount(referenceText)))
	}
}

// whisperx JSON output shapes. Word timings appear nested under segments and,
// in newer versions, flattened in word_segments.
type whisperxWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperxSegment struct {
	Text  string         `json:"text"`
	Start float64        `json:"start"`
	End   float64        `json:"end"`
	Words []whisperxWord `json:"words"`
}

type whisperxPayload struct {
	Segments     []whisperxSegment `json:"segments"`
	WordSegments []whisperxWord    `json:"word_segments"`
}

// loadWordTimestamps flattens a WhisperX JSON file into the chronological
// word sequence. Words without timing data inherit the previous end time so
// that positions stay aligned with the transcript.
func loadWordTimestamps(jsonPath string) ([]library.WordTimestamp, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read whisperx output: %w", err)
	}
	var payload whisperxPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}

	var words []whisperxWord
	for _, segment := range payload.Segments {
		words = append(words, segment.Words...)
	}
	if len(words) == 0 {
		words = payload.WordSegments
	}

	timestamps := make([]library.WordTimestamp, 0, len(words))
	lastEnd := 0.0
	for _, word := range words {
		text := strings.TrimSpace(word.Word)
		if text == "" {
			continue
		}
		start := word.Start
		end := word.End
		if start == 0 && end == 0 {
			start = lastEnd
			end = lastEnd
		}
		if end < start {
			end = start
		}
		lastEnd = end
		timestamps = append(timestamps, library.WordTimestamp{Word: text, Start: start, End: end})
	}
	return timestamps, nil
}
