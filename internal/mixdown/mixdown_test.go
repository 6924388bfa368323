package mixdown_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"soundloom/internal/media/ffprobe"
	"soundloom/internal/mixdown"
	"soundloom/internal/testsupport"
)

func TestBuildPlanSpeechOnly(t *testing.T) {
	plan := mixdown.BuildPlan(mixdown.PlanInput{SpeechPath: "/tmp/speech.mp3"})
	if !plan.SpeechOnly {
		t.Fatal("expected speech-only plan")
	}
	if len(plan.Layers) != 1 || plan.Layers[0].Source != "/tmp/speech.mp3" {
		t.Fatalf("unexpected layers: %#v", plan.Layers)
	}
}

func TestBuildPlanFullComposition(t *testing.T) {
	plan := mixdown.BuildPlan(mixdown.PlanInput{
		SpeechPath:       "/tmp/speech.mp3",
		SpeechDuration:   30,
		MusicPath:        "/tmp/music.mp3",
		Cues: []mixdown.Cue{
			{Path: "/tmp/fx0.mp3", StartSeconds: 4.45},
			{Path: "/tmp/fx1.mp3", StartSeconds: 12},
		},
		BackgroundVolume: 0.15,
		EffectsVolume:    0.30,
		SpeechStartDelay: 3,
		MusicFadeout:     3,
	})
	if plan.SpeechOnly {
		t.Fatal("expected layered plan")
	}
	if len(plan.Layers) != 4 {
		t.Fatalf("expected 4 layers, got %d", len(plan.Layers))
	}

	speech := plan.Layers[0]
	if speech.DelaySeconds != 3 || speech.PadSeconds != 3 || speech.Gain != 0 {
		t.Fatalf("unexpected speech layer: %#v", speech)
	}

	music := plan.Layers[1]
	if music.Gain != 0.15 || music.DelaySeconds != 0 {
		t.Fatalf("unexpected music layer: %#v", music)
	}
	if music.FadeOut == nil || music.FadeOut.StartSeconds != 33 || music.FadeOut.DurationSeconds != 3 {
		t.Fatalf("unexpected music fade: %#v", music.FadeOut)
	}

	// Cues carry the same global offset as the speech layer.
	if got := plan.Layers[2].DelaySeconds; got != 7.45 {
		t.Fatalf("cue 0 delay = %v, want 7.45", got)
	}
	if got := plan.Layers[3].DelaySeconds; got != 15.0 {
		t.Fatalf("cue 1 delay = %v, want 15", got)
	}
	for _, cue := range plan.Layers[2:] {
		if cue.Gain != 0.30 {
			t.Fatalf("cue gain = %v, want 0.30", cue.Gain)
		}
	}
}

func TestBuildPlanUnknownSpeechDurationDropsFade(t *testing.T) {
	plan := mixdown.BuildPlan(mixdown.PlanInput{
		SpeechPath:       "/tmp/speech.mp3",
		MusicPath:        "/tmp/music.mp3",
		BackgroundVolume: 0.15,
		SpeechStartDelay: 3,
		MusicFadeout:     3,
	})
	if plan.Layers[1].FadeOut != nil {
		t.Fatalf("expected fade dropped with unknown speech duration, got %#v", plan.Layers[1].FadeOut)
	}
}

func TestBuildPlanCuesWithoutMusic(t *testing.T) {
	plan := mixdown.BuildPlan(mixdown.PlanInput{
		SpeechPath:       "/tmp/speech.mp3",
		SpeechDuration:   10,
		Cues:             []mixdown.Cue{{Path: "/tmp/fx.mp3", StartSeconds: 2}},
		EffectsVolume:    0.30,
		SpeechStartDelay: 3,
		MusicFadeout:     3,
	})
	if plan.SpeechOnly {
		t.Fatal("cues alone still need the layered path")
	}
	if len(plan.Layers) != 2 {
		t.Fatalf("expected speech + cue layers, got %d", len(plan.Layers))
	}
	if plan.Layers[1].DelaySeconds != 5 {
		t.Fatalf("cue delay = %v, want 5", plan.Layers[1].DelaySeconds)
	}
}

func TestRenderArgs(t *testing.T) {
	plan := mixdown.BuildPlan(mixdown.PlanInput{
		SpeechPath:       "/tmp/speech.mp3",
		SpeechDuration:   30,
		MusicPath:        "/tmp/music.mp3",
		Cues:             []mixdown.Cue{{Path: "/tmp/fx0.mp3", StartSeconds: 4.45}},
		BackgroundVolume: 0.15,
		EffectsVolume:    0.30,
		SpeechStartDelay: 3,
		MusicFadeout:     3,
	})
	args := mixdown.Render(plan, "/tmp/out.mp3")
	joined := strings.Join(args, " ")

	wantPrefix := "-i /tmp/speech.mp3 -i /tmp/music.mp3 -i /tmp/fx0.mp3 -filter_complex"
	if !strings.HasPrefix(joined, wantPrefix) {
		t.Fatalf("unexpected input ordering: %s", joined)
	}

	wantGraph := "[0:a]adelay=3000|3000,apad=pad_dur=3[sp];" +
		"[1:a]volume=0.15,afade=t=out:st=33:d=3[bg];" +
		"[2:a]volume=0.3,adelay=7450|7450[fx0];" +
		"[sp][bg][fx0]amix=inputs=3:duration=longest[mix]"
	found := false
	for _, arg := range args {
		if arg == wantGraph {
			found = true
		}
	}
	if !found {
		t.Fatalf("filter graph mismatch:\nwant %s\ngot args %s", wantGraph, joined)
	}

	if !strings.HasSuffix(joined, "-map [mix] -c:a libmp3lame -q:a 2 -y /tmp/out.mp3") {
		t.Fatalf("unexpected output args: %s", joined)
	}
}

// mixStub fakes ffmpeg and records every invocation.
type mixStub struct {
	calls      [][]string
	failFilter string
}

func (m *mixStub) run(ctx context.Context, name string, args ...string) error {
	m.calls = append(m.calls, append([]string{name}, args...))
	joined := strings.Join(args, " ")
	if m.failFilter != "" && strings.Contains(joined, m.failFilter) {
		return errors.New("stub failure")
	}
	return os.WriteFile(args[len(args)-1], []byte("fake-audio"), 0o644)
}

func (m *mixStub) callsContaining(fragment string) [][]string {
	var out [][]string
	for _, call := range m.calls {
		if strings.Contains(strings.Join(call, " "), fragment) {
			out = append(out, call)
		}
	}
	return out
}

func staticProber(durations map[string]float64) func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
	return func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		if duration, ok := durations[path]; ok {
			return ffprobe.Result{Format: ffprobe.Format{Duration: strconv.FormatFloat(duration, 'f', -1, 64)}}, nil
		}
		return ffprobe.Result{}, errors.New("probe failed")
	}
}

func TestMixSpeechOnlyShortCircuit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	speech := filepath.Join(workDir, "combined.mp3")
	if err := os.WriteFile(speech, []byte("speech"), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(workDir, "final.mp3")

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(staticProber(map[string]float64{output: 12.5}))

	result, err := engine.Mix(context.Background(), mixdown.Request{
		TextID:     1,
		SpeechPath: speech,
		WorkDir:    workDir,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}
	if !result.SpeechOnly {
		t.Fatal("expected speech-only result")
	}
	if result.DurationSeconds != 12.5 {
		t.Fatalf("duration = %v, want 12.5", result.DurationSeconds)
	}
	if len(result.Degradations) != 0 {
		t.Fatalf("unexpected degradations: %#v", result.Degradations)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected only the loudnorm invocation, got %d calls", len(stub.calls))
	}
	if norm := stub.callsContaining("loudnorm=I=-18:TP=-1.5:LRA=11"); len(norm) != 1 {
		t.Fatalf("expected one loudnorm call, got %v", stub.calls)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected staged master: %v", err)
	}
}

func TestMixLayered(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	speech := filepath.Join(workDir, "combined.mp3")
	music := filepath.Join(workDir, "music.mp3")
	fx := filepath.Join(workDir, "fx.mp3")
	for _, p := range []string{speech, music, fx} {
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	output := filepath.Join(workDir, "final.mp3")
	normalizedSpeech := filepath.Join(workDir, "speech_norm.mp3")

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(staticProber(map[string]float64{
		normalizedSpeech: 30,
		output:           41.2,
	}))

	result, err := engine.Mix(context.Background(), mixdown.Request{
		TextID:     1,
		SpeechPath: speech,
		MusicPath:  music,
		Cues:       []mixdown.Cue{{Path: fx, StartSeconds: 4.45}},
		WorkDir:    workDir,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}
	if result.SpeechOnly {
		t.Fatal("expected layered result")
	}
	if len(result.Degradations) != 0 {
		t.Fatalf("unexpected degradations: %#v", result.Degradations)
	}
	if result.DurationSeconds != 41.2 {
		t.Fatalf("duration = %v, want 41.2", result.DurationSeconds)
	}

	if norms := stub.callsContaining("loudnorm="); len(norms) != 2 {
		t.Fatalf("expected speech + music loudnorm, got %d", len(norms))
	}
	renders := stub.callsContaining("-filter_complex")
	if len(renders) != 1 {
		t.Fatalf("expected one render call, got %d", len(renders))
	}
	graph := strings.Join(renders[0], " ")
	if !strings.Contains(graph, "adelay=7450|7450") {
		t.Fatalf("cue delay missing global offset: %s", graph)
	}
	if !strings.Contains(graph, "afade=t=out:st=33:d=3") {
		t.Fatalf("music fade misplaced: %s", graph)
	}
	if !strings.Contains(graph, "amix=inputs=3:duration=longest") {
		t.Fatalf("amix semantics wrong: %s", graph)
	}
	if !strings.Contains(graph, "speech_norm.mp3") || !strings.Contains(graph, "music_norm.mp3") {
		t.Fatalf("expected normalized intermediates as inputs: %s", graph)
	}
}

func TestMixNormalizationFailureFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	speech := filepath.Join(workDir, "combined.mp3")
	music := filepath.Join(workDir, "music.mp3")
	for _, p := range []string{speech, music} {
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	output := filepath.Join(workDir, "final.mp3")

	stub := &mixStub{failFilter: "loudnorm="}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(staticProber(map[string]float64{
		speech: 20,
		output: 26,
	}))

	result, err := engine.Mix(context.Background(), mixdown.Request{
		TextID:     1,
		SpeechPath: speech,
		MusicPath:  music,
		WorkDir:    workDir,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Mix should degrade, not fail: %v", err)
	}

	steps := make(map[string]bool)
	for _, d := range result.Degradations {
		steps[d.Step] = true
	}
	if !steps["normalize_speech"] || !steps["normalize_music"] {
		t.Fatalf("expected normalization degradations, got %#v", result.Degradations)
	}

	renders := stub.callsContaining("-filter_complex")
	if len(renders) != 1 {
		t.Fatalf("expected one render call, got %d", len(renders))
	}
	joined := strings.Join(renders[0], " ")
	if !strings.Contains(joined, "-i "+speech) || !strings.Contains(joined, "-i "+music) {
		t.Fatalf("expected un-normalized inputs after fallback: %s", joined)
	}
}

func TestMixSpeechProbeFailureDropsFade(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	speech := filepath.Join(workDir, "combined.mp3")
	music := filepath.Join(workDir, "music.mp3")
	for _, p := range []string{speech, music} {
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	output := filepath.Join(workDir, "final.mp3")

	stub := &mixStub{}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(staticProber(map[string]float64{output: 26}))

	result, err := engine.Mix(context.Background(), mixdown.Request{
		TextID:     1,
		SpeechPath: speech,
		MusicPath:  music,
		WorkDir:    workDir,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	foundProbe := false
	for _, d := range result.Degradations {
		if d.Step == "probe_speech" {
			foundProbe = true
		}
	}
	if !foundProbe {
		t.Fatalf("expected probe_speech degradation, got %#v", result.Degradations)
	}

	renders := stub.callsContaining("-filter_complex")
	if strings.Contains(strings.Join(renders[0], " "), "afade") {
		t.Fatalf("fade should be dropped when speech duration unknown: %v", renders[0])
	}
}

func TestMixRenderFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()
	speech := filepath.Join(workDir, "combined.mp3")
	music := filepath.Join(workDir, "music.mp3")
	for _, p := range []string{speech, music} {
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	stub := &mixStub{failFilter: "-filter_complex"}
	engine := mixdown.NewEngine(cfg, nil)
	engine.WithCommandRunner(stub.run)
	engine.WithProber(staticProber(map[string]float64{
		filepath.Join(workDir, "speech_norm.mp3"): 20,
	}))

	_, err := engine.Mix(context.Background(), mixdown.Request{
		TextID:     1,
		SpeechPath: speech,
		MusicPath:  music,
		WorkDir:    workDir,
		OutputPath: filepath.Join(workDir, "final.mp3"),
	})
	if err == nil {
		t.Fatal("expected render failure to surface")
	}
}
