package alignment_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"soundloom/internal/alignment"
)

func newTestService(t *testing.T) (*alignment.Service, string) {
	t.Helper()
	workDir := t.TempDir()
	svc := alignment.NewService(alignment.Config{
		Model:       "small",
		Device:      "cpu",
		ComputeType: "int8",
		Language:    "en",
		WorkDir:     workDir,
	}, "uvx", nil)
	return svc, workDir
}

// outputDirFromArgs extracts the --output_dir value the service passed to uvx.
func outputDirFromArgs(t *testing.T, args []string) string {
	t.Helper()
	for i, arg := range args {
		if arg == "--output_dir" && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("no --output_dir in args: %v", args)
	return ""
}

func TestAlignParsesWordTimings(t *testing.T) {
	svc, workDir := newTestService(t)

	audioPath := filepath.Join(workDir, "combined_speech_1_1700000000.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		outputDir := outputDirFromArgs(t, args)
		payload := `{
			"segments": [
				{"text": "the door opened", "start": 0, "end": 1.2, "words": [
					{"word": "the", "start": 0.0, "end": 0.2},
					{"word": "door", "start": 0.25, "end": 0.6},
					{"word": "opened", "start": 0.65, "end": 0.5}
				]},
				{"text": "slowly", "start": 1.3, "end": 1.9, "words": [
					{"word": "slowly", "start": 1.3, "end": 1.9}
				]}
			]
		}`
		return os.WriteFile(filepath.Join(outputDir, "combined_speech_1_1700000000.json"), []byte(payload), 0o644)
	})

	timestamps, err := svc.Align(context.Background(), audioPath, "the door opened slowly")
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if gotName != "uvx" {
		t.Fatalf("expected uvx invocation, got %s", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, fragment := range []string{"whisperx", "--model small", "--output_format json", "--device cpu", "--compute_type int8", "--language en"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected args to contain %q, got %s", fragment, joined)
		}
	}

	if len(timestamps) != 4 {
		t.Fatalf("expected 4 word timestamps, got %d", len(timestamps))
	}
	if timestamps[1].Word != "door" || timestamps[1].Start != 0.25 {
		t.Fatalf("unexpected second timestamp: %#v", timestamps[1])
	}
	if timestamps[3].Word != "slowly" {
		t.Fatalf("expected words flattened across segments, got %#v", timestamps[3])
	}
	// "opened" reported end 0.5 before start 0.65; clamped to start.
	if timestamps[2].End != timestamps[2].Start {
		t.Fatalf("expected inverted timing clamped, got %#v", timestamps[2])
	}
}

func TestAlignFallsBackToWordSegments(t *testing.T) {
	svc, workDir := newTestService(t)

	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		outputDir := outputDirFromArgs(t, args)
		payload := `{
			"segments": [],
			"word_segments": [
				{"word": "hello", "start": 0.1, "end": 0.4},
				{"word": "there", "start": 0.5, "end": 0.8}
			]
		}`
		return os.WriteFile(filepath.Join(outputDir, "speech.json"), []byte(payload), 0o644)
	})

	timestamps, err := svc.Align(context.Background(), audioPath, "hello there")
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if len(timestamps) != 2 || timestamps[0].Word != "hello" {
		t.Fatalf("expected word_segments fallback, got %#v", timestamps)
	}
}

func TestAlignRunnerFailure(t *testing.T) {
	svc, workDir := newTestService(t)

	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("model run exploded")
	})

	_, err := svc.Align(context.Background(), audioPath, "text")
	if !errors.Is(err, alignment.ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
}

func TestAlignMissingToolchain(t *testing.T) {
	svc, workDir := newTestService(t)

	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return exec.ErrNotFound
	})

	_, err := svc.Align(context.Background(), audioPath, "text")
	if !errors.Is(err, alignment.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for missing binary, got %v", err)
	}
}

func TestAlignEmptyOutput(t *testing.T) {
	svc, workDir := newTestService(t)

	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		outputDir := outputDirFromArgs(t, args)
		return os.WriteFile(filepath.Join(outputDir, "speech.json"), []byte(`{"segments": []}`), 0o644)
	})

	_, err := svc.Align(context.Background(), audioPath, "text")
	if !errors.Is(err, alignment.ErrFailed) {
		t.Fatalf("expected ErrFailed for empty output, got %v", err)
	}
}

func TestAlignReusesCachedResult(t *testing.T) {
	workDir := t.TempDir()
	svc := alignment.NewService(alignment.Config{
		Model:    "small",
		Device:   "cpu",
		Language: "en",
		WorkDir:  workDir,
		CacheDir: workDir,
	}, "uvx", nil)

	audioPath := filepath.Join(workDir, "speech.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	invocations := 0
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		invocations++
		outputDir := outputDirFromArgs(t, args)
		payload := `{"segments": [{"text": "hello there", "start": 0, "end": 0.8, "words": [
			{"word": "hello", "start": 0.1, "end": 0.4},
			{"word": "there", "start": 0.5, "end": 0.8}
		]}]}`
		return os.WriteFile(filepath.Join(outputDir, "speech.json"), []byte(payload), 0o644)
	})

	first, err := svc.Align(context.Background(), audioPath, "hello there")
	if err != nil {
		t.Fatalf("first Align failed: %v", err)
	}
	second, err := svc.Align(context.Background(), audioPath, "hello there")
	if err != nil {
		t.Fatalf("second Align failed: %v", err)
	}

	if invocations != 1 {
		t.Fatalf("expected one whisperx run for unchanged audio, got %d", invocations)
	}
	if len(second) != len(first) || second[0].Word != "hello" {
		t.Fatalf("cached result differs: %#v", second)
	}

	// Changing the audio content invalidates the cached entry.
	if err := os.WriteFile(audioPath, []byte("different mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Align(context.Background(), audioPath, "hello there"); err != nil {
		t.Fatalf("Align after content change failed: %v", err)
	}
	if invocations != 2 {
		t.Fatalf("expected re-run after audio changed, got %d invocations", invocations)
	}
}
