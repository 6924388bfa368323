package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/media/ffprobe"
	"soundloom/internal/mixdown"
	"soundloom/internal/pipeline"
	"soundloom/internal/services"
	"soundloom/internal/testsupport"
)

// mixStub fakes ffmpeg and records every invocation.
type mixStub struct {
	calls [][]string
}

func (m *mixStub) run(ctx context.Context, name string, args ...string) error {
	m.calls = append(m.calls, append([]string{name}, args...))
	return os.WriteFile(args[len(args)-1], []byte("fake-audio"), 0o644)
}

func (m *mixStub) renderCall() []string {
	for _, call := range m.calls {
		if strings.Contains(strings.Join(call, " "), "-filter_complex") {
			return call
		}
	}
	return nil
}

// proberByBase resolves durations by file basename, since the mix stage
// creates its scratch directory with an unpredictable suffix.
func proberByBase(durations map[string]float64) func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
	return func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		if duration, ok := durations[filepath.Base(path)]; ok {
			return ffprobe.Result{Format: ffprobe.Format{Duration: fmt.Sprintf("%g", duration)}}, nil
		}
		return ffprobe.Result{}, errors.New("probe failed")
	}
}

func writeCombinedFile(t *testing.T, dir string, textID int64) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("combined_speech_%d_1.mp3", textID))
	if err := os.WriteFile(path, []byte("combined"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMixerPublishesSpeechOnlyMaster(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	text := testsupport.NewText(t, store, "Plain", "nothing but a voice")
	run := testsupport.NewRun(t, store, text.ID)
	run.CombinedFile = writeCombinedFile(t, cfg.Paths.StagingDir, text.ID)

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(proberByBase(map[string]float64{
		fmt.Sprintf("mixed_%d.mp3", text.ID): 12.5,
	}))
	mixer := pipeline.NewMixer(cfg, store, logging.NewNop(), engine)

	if err := mixer.Prepare(ctx, run); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := mixer.Execute(ctx, run); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.MixedFile == "" {
		t.Fatal("expected mixed file on run")
	}
	if !strings.HasPrefix(filepath.Base(run.MixedFile), "final_audio_") {
		t.Fatalf("unexpected final name: %s", run.MixedFile)
	}
	if filepath.Dir(run.MixedFile) != cfg.Paths.LibraryDir {
		t.Fatalf("master not in library dir: %s", run.MixedFile)
	}
	if _, err := os.Stat(run.MixedFile); err != nil {
		t.Fatalf("published master missing: %v", err)
	}
	if run.DurationSeconds != 12.5 {
		t.Fatalf("duration = %v, want 12.5", run.DurationSeconds)
	}
	if run.ProgressStage != "Mixing" || run.ProgressPercent != 100 {
		t.Fatalf("unexpected progress: %s %.0f", run.ProgressStage, run.ProgressPercent)
	}
	if !strings.Contains(run.ProgressMessage, "speech-only") {
		t.Fatalf("unexpected message: %q", run.ProgressMessage)
	}
}

func TestMixerResolvesCuesAndPersistsTimes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	text := testsupport.NewText(t, store, "Layered", "the old door creaked open slowly")
	if err := store.ReplaceWordTimestamps(ctx, text.ID, []library.WordTimestamp{
		{Word: "the", Start: 0, End: 0.2},
		{Word: "old", Start: 0.25, End: 0.5},
		{Word: "door", Start: 1.45, End: 1.9},
		{Word: "creaked", Start: 2.0, End: 2.6},
		{Word: "open", Start: 2.7, End: 3.1},
	}); err != nil {
		t.Fatal(err)
	}
	effect, err := store.CreateSoundEffect(ctx, &library.SoundEffect{
		TextID:            text.ID,
		Name:              "creak",
		Prompt:            "old door creaking",
		StartWordPosition: intPtr(2),
		EndWordPosition:   intPtr(4),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEffectAudio(ctx, effect.ID, []byte("creak-audio")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveMusicAudio(ctx, text.ID, []byte("music-bed")); err != nil {
		t.Fatal(err)
	}

	run := testsupport.NewRun(t, store, text.ID)
	run.CombinedFile = writeCombinedFile(t, cfg.Paths.StagingDir, text.ID)

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(proberByBase(map[string]float64{
		"speech_norm.mp3":                    30,
		fmt.Sprintf("mixed_%d.mp3", text.ID): 41.2,
	}))
	mixer := pipeline.NewMixer(cfg, store, logging.NewNop(), engine)

	if err := mixer.Execute(ctx, run); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, err := store.SoundEffects(ctx, text.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].StartTime == nil {
		t.Fatalf("expected resolved start time, got %#v", stored)
	}
	if *stored[0].StartTime != 1.45 {
		t.Fatalf("start time = %v, want 1.45", *stored[0].StartTime)
	}
	if stored[0].EndTime == nil || *stored[0].EndTime != 2.7 {
		t.Fatalf("end time = %v, want 2.7", stored[0].EndTime)
	}

	render := stub.renderCall()
	if render == nil {
		t.Fatal("expected a layered render invocation")
	}
	joined := strings.Join(render, " ")
	if !strings.Contains(joined, "amix=inputs=3") {
		t.Fatalf("expected speech + music + cue inputs: %s", joined)
	}
	if run.DurationSeconds != 41.2 {
		t.Fatalf("duration = %v, want 41.2", run.DurationSeconds)
	}
	if run.DegradationsJSON != "" {
		t.Fatalf("unexpected degradations: %s", run.DegradationsJSON)
	}
}

func TestMixerDropsCuesWithoutTimestamps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	text := testsupport.NewText(t, store, "Unaligned", "no timeline here")
	effect, err := store.CreateSoundEffect(ctx, &library.SoundEffect{
		TextID:            text.ID,
		Name:              "wind",
		Prompt:            "howling wind",
		StartWordPosition: intPtr(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEffectAudio(ctx, effect.ID, []byte("wind-audio")); err != nil {
		t.Fatal(err)
	}

	run := testsupport.NewRun(t, store, text.ID)
	run.CombinedFile = writeCombinedFile(t, cfg.Paths.StagingDir, text.ID)
	run.SetDegradations([]library.Degradation{{Step: "dispatch_music", Reason: "provider down"}})

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(proberByBase(map[string]float64{
		fmt.Sprintf("mixed_%d.mp3", text.ID): 9,
	}))
	mixer := pipeline.NewMixer(cfg, store, logging.NewNop(), engine)

	if err := mixer.Execute(ctx, run); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	steps := make(map[string]string)
	for _, d := range run.Degradations() {
		steps[d.Step] = d.Reason
	}
	if _, ok := steps["dispatch_music"]; !ok {
		t.Fatalf("production degradation lost: %#v", run.Degradations())
	}
	reason, ok := steps["resolve_cues"]
	if !ok {
		t.Fatalf("expected resolve_cues degradation, got %#v", run.Degradations())
	}
	if !strings.Contains(reason, "no word timestamps") {
		t.Fatalf("unexpected reason: %s", reason)
	}
	if run.MixedFile == "" {
		t.Fatal("mix should still publish without cues")
	}
}

func TestMixerRequiresCombinedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	text := testsupport.NewText(t, store, "Missing", "never produced")
	run := testsupport.NewRun(t, store, text.ID)

	mixer := pipeline.NewMixer(cfg, store, logging.NewNop(), mixdown.NewEngine(cfg, nil))

	err := mixer.Execute(ctx, run)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing combined file, got %v", err)
	}
	if !strings.Contains(err.Error(), "produce must run first") {
		t.Fatalf("unexpected message: %v", err)
	}

	run.CombinedFile = filepath.Join(cfg.Paths.StagingDir, "combined_speech_gone.mp3")
	err = mixer.Execute(ctx, run)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for vanished combined file, got %v", err)
	}
	if !strings.Contains(err.Error(), "is missing") {
		t.Fatalf("unexpected message: %v", err)
	}
}
