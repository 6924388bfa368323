package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"soundloom/internal/alignment"
	"soundloom/internal/combiner"
	"soundloom/internal/config"
	"soundloom/internal/generation"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/textutil"
)

// silenceManifestName is the optional manifest inside a segments directory
// mapping segment file names to trailing silence seconds.
const silenceManifestName = "silence.json"

var segmentAudioExtensions = map[string]struct{}{
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".wav":  {},
}

type IngestTextRequest struct {
	Config      *config.Config
	Logger      *slog.Logger
	Title       string
	BodyPath    string
	SegmentsDir string
	CuesPath    string
	MusicPrompt string
}

type IngestTextResult struct {
	TextID       int64
	Title        string
	SegmentCount int
	CueCount     int

	// AdvisedCueLimit is non-zero when the cue sheet exceeds the advisory
	// effect cap for the text length.
	AdvisedCueLimit int
}

// IngestText loads a text body, its per-segment speech audio, and an optional
// cue sheet into the library.
func IngestText(ctx context.Context, req IngestTextRequest) (IngestTextResult, error) {
	cfg := req.Config
	if cfg == nil {
		return IngestTextResult{}, fmt.Errorf("configuration is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	bodyPath := strings.TrimSpace(req.BodyPath)
	if bodyPath == "" {
		return IngestTextResult{}, fmt.Errorf("text body path is required")
	}
	raw, err := os.ReadFile(bodyPath)
	if err != nil {
		return IngestTextResult{}, fmt.Errorf("read text body: %w", err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return IngestTextResult{}, fmt.Errorf("text body %q is empty", bodyPath)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = textutil.DeriveTitle(body)
	}

	store, err := library.Open(cfg)
	if err != nil {
		return IngestTextResult{}, fmt.Errorf("open library store: %w", err)
	}
	defer store.Close()

	text, err := store.CreateText(ctx, title, body)
	if err != nil {
		return IngestTextResult{}, fmt.Errorf("create text: %w", err)
	}
	if prompt := strings.TrimSpace(req.MusicPrompt); prompt != "" {
		text.MusicPrompt = prompt
		if err := store.UpdateText(ctx, text); err != nil {
			return IngestTextResult{}, fmt.Errorf("store music prompt: %w", err)
		}
	}

	result := IngestTextResult{TextID: text.ID, Title: title}

	if dir := strings.TrimSpace(req.SegmentsDir); dir != "" {
		files, err := loadSegmentFiles(dir)
		if err != nil {
			return IngestTextResult{}, err
		}
		if len(files) == 0 {
			return IngestTextResult{}, fmt.Errorf("no audio segments found in %q", dir)
		}
		for i, file := range files {
			if _, err := store.AddSpeechSegment(ctx, text.ID, i+1, file.audio, 0, file.silence); err != nil {
				return IngestTextResult{}, fmt.Errorf("store segment %s: %w", file.name, err)
			}
		}
		result.SegmentCount = len(files)
	}

	if cuesPath := strings.TrimSpace(req.CuesPath); cuesPath != "" {
		count, err := ingestCues(ctx, store, logger, text, cuesPath)
		if err != nil {
			return IngestTextResult{}, err
		}
		result.CueCount = count
		if advised := generation.MaxEffects(text.Body); count > advised {
			result.AdvisedCueLimit = advised
		}
	}

	logger.Info("text ingested",
		logging.Int64(logging.FieldTextID, text.ID),
		logging.String("title", title),
		logging.Int("segments", result.SegmentCount),
		logging.Int("cues", result.CueCount),
	)
	return result, nil
}

type segmentFile struct {
	name    string
	audio   []byte
	silence float64
}

// loadSegmentFiles reads every audio file in the directory in name order.
// Collaborators deliver segments with zero-padded names, so lexical order is
// playback order.
func loadSegmentFiles(dir string) ([]segmentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segments directory: %w", err)
	}
	silences, err := loadSilenceManifest(filepath.Join(dir, silenceManifestName))
	if err != nil {
		return nil, err
	}
	files := make([]segmentFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := segmentAudioExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		audio, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read segment %s: %w", name, err)
		}
		files = append(files, segmentFile{name: name, audio: audio, silence: silences[name]})
	}
	return files, nil
}

func loadSilenceManifest(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read silence manifest: %w", err)
	}
	out := make(map[string]float64)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse silence manifest: %w", err)
	}
	return out, nil
}

// cueSpec is one entry of a collaborator-produced cue sheet.
type cueSpec struct {
	Name              string `json:"name"`
	Prompt            string `json:"prompt"`
	StartWord         string `json:"start_word"`
	EndWord           string `json:"end_word"`
	StartWordPosition *int   `json:"start_word_position"`
	EndWordPosition   *int   `json:"end_word_position"`
	Rank              int    `json:"rank"`
}

func ingestCues(ctx context.Context, store *library.Store, logger *slog.Logger, text *library.Text, cuesPath string) (int, error) {
	raw, err := os.ReadFile(cuesPath)
	if err != nil {
		return 0, fmt.Errorf("read cue sheet: %w", err)
	}
	var cues []cueSpec
	if err := json.Unmarshal(raw, &cues); err != nil {
		return 0, fmt.Errorf("parse cue sheet: %w", err)
	}

	for i, cue := range cues {
		if strings.TrimSpace(cue.Prompt) == "" {
			return 0, fmt.Errorf("cue %d is missing a prompt", i+1)
		}
		name := strings.TrimSpace(cue.Name)
		if name == "" {
			name = fmt.Sprintf("cue_%02d", i+1)
		}
		rank := cue.Rank
		if rank == 0 {
			rank = i + 1
		}
		effect := &library.SoundEffect{
			TextID:            text.ID,
			Name:              name,
			Prompt:            strings.TrimSpace(cue.Prompt),
			StartWord:         strings.TrimSpace(cue.StartWord),
			EndWord:           strings.TrimSpace(cue.EndWord),
			StartWordPosition: cue.StartWordPosition,
			EndWordPosition:   cue.EndWordPosition,
			Rank:              rank,
		}
		if _, err := store.CreateSoundEffect(ctx, effect); err != nil {
			return 0, fmt.Errorf("store cue %s: %w", name, err)
		}
	}

	if advised := generation.MaxEffects(text.Body); len(cues) > advised {
		logger.Warn("cue sheet exceeds advisory effect limit",
			logging.Int64(logging.FieldTextID, text.ID),
			logging.Int("cues", len(cues)),
			logging.Int("advised_limit", advised),
			logging.String(logging.FieldEventType, "cue_limit_exceeded"),
			logging.String(logging.FieldImpact, "extra effect generations cost more and may crowd the mix"),
		)
	}
	return len(cues), nil
}

type ExportTextRequest struct {
	Config         *config.Config
	Logger         *slog.Logger
	TextID         int64
	AllowDuplicate bool
}

type ExportTextResult struct {
	RunID  int64
	TextID int64
	Title  string
}

// ExportText enqueues a run for the text so the daemon assembles and
// publishes its mixdown.
func ExportText(ctx context.Context, req ExportTextRequest) (ExportTextResult, error) {
	cfg := req.Config
	if cfg == nil {
		return ExportTextResult{}, fmt.Errorf("configuration is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := library.Open(cfg)
	if err != nil {
		return ExportTextResult{}, fmt.Errorf("open library store: %w", err)
	}
	defer store.Close()

	text, err := store.GetText(ctx, req.TextID)
	if err != nil {
		return ExportTextResult{}, fmt.Errorf("load text: %w", err)
	}
	if text == nil {
		return ExportTextResult{}, fmt.Errorf("text %d not found", req.TextID)
	}

	segments, err := store.SpeechSegments(ctx, text.ID)
	if err != nil {
		return ExportTextResult{}, fmt.Errorf("load segments: %w", err)
	}
	if len(segments) == 0 {
		return ExportTextResult{}, fmt.Errorf("text %d has no speech segments; ingest segment audio first", text.ID)
	}

	if existing, err := store.ActiveRunForText(ctx, text.ID); err != nil {
		return ExportTextResult{}, fmt.Errorf("check active runs: %w", err)
	} else if existing != nil && !req.AllowDuplicate {
		return ExportTextResult{}, fmt.Errorf("text %d already has an active run %d (status %s); use --allow-duplicate to queue another", text.ID, existing.ID, existing.Status)
	}

	run, err := store.NewRun(ctx, text.ID)
	if err != nil {
		return ExportTextResult{}, fmt.Errorf("enqueue run: %w", err)
	}

	logger.Info("run enqueued",
		logging.Int64(logging.FieldRunID, run.ID),
		logging.Int64(logging.FieldTextID, text.ID),
		logging.String("title", text.Title),
	)
	return ExportTextResult{RunID: run.ID, TextID: text.ID, Title: text.Title}, nil
}

type AlignTextRequest struct {
	Config *config.Config
	Logger *slog.Logger
	TextID int64
}

type AlignTextResult struct {
	TextID       int64
	CombinedPath string
	SegmentCount int
	WordCount    int
}

// AlignText combines the text's segments into a staged track and refreshes
// its word timestamps without enqueueing a run.
func AlignText(ctx context.Context, req AlignTextRequest) (AlignTextResult, error) {
	cfg := req.Config
	if cfg == nil {
		return AlignTextResult{}, fmt.Errorf("configuration is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if !cfg.Alignment.Enabled {
		return AlignTextResult{}, fmt.Errorf("alignment is disabled; enable [alignment] in config")
	}

	store, err := library.Open(cfg)
	if err != nil {
		return AlignTextResult{}, fmt.Errorf("open library store: %w", err)
	}
	defer store.Close()

	text, err := store.GetText(ctx, req.TextID)
	if err != nil {
		return AlignTextResult{}, fmt.Errorf("load text: %w", err)
	}
	if text == nil {
		return AlignTextResult{}, fmt.Errorf("text %d not found", req.TextID)
	}

	aligner := alignment.NewService(alignment.Config{
		Model:       cfg.Alignment.Model,
		Device:      cfg.Alignment.Device,
		ComputeType: cfg.Alignment.ComputeType,
		Language:    cfg.Alignment.Language,
		WorkDir:     cfg.Paths.AlignmentCacheDir,
		CacheDir:    cfg.Paths.AlignmentCacheDir,
	}, cfg.UvxBinary(), logger)
	comb := combiner.NewService(store, cfg, aligner, logger)

	result, err := comb.Combine(ctx, text)
	if err != nil {
		if errors.Is(err, combiner.ErrNoAudioSegments) {
			return AlignTextResult{}, fmt.Errorf("text %d has no speech segments with audio; ingest segment audio first", text.ID)
		}
		return AlignTextResult{}, fmt.Errorf("combine speech: %w", err)
	}
	if !result.Aligned {
		return AlignTextResult{}, fmt.Errorf("alignment produced no word timestamps; check that %s can run the aligner", cfg.UvxBinary())
	}

	return AlignTextResult{
		TextID:       text.ID,
		CombinedPath: result.CombinedPath,
		SegmentCount: result.SegmentCount,
		WordCount:    result.WordCount,
	}, nil
}
