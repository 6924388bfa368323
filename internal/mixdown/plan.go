package mixdown

import "strconv"

// Cue is one sound effect placed on the timeline. StartSeconds is
// speech-track-relative; the plan applies the global speech delay.
type Cue struct {
	Path         string
	StartSeconds float64
}

// Fade schedules a fade-out on a layer.
type Fade struct {
	StartSeconds    float64
	DurationSeconds float64
}

// Layer is one input to the mix graph with its gain and timing treatment.
type Layer struct {
	// Source is the input file path.
	Source string
	// Label names the filter graph stream for this layer.
	Label string
	// Gain scales the layer; 0 means unity and emits no volume filter.
	Gain float64
	// DelaySeconds shifts the layer's start on the shared timeline.
	DelaySeconds float64
	// PadSeconds extends the layer's end with silence.
	PadSeconds float64
	// FadeOut fades the layer's tail, if set.
	FadeOut *Fade
}

// Plan is the full layered composition for one master.
type Plan struct {
	Layers []Layer
	// SpeechOnly marks a single-layer plan that needs no filter graph.
	SpeechOnly bool
}

// PlanInput carries everything BuildPlan needs to lay out the timeline.
type PlanInput struct {
	SpeechPath string
	// SpeechDuration is the measured length of the (possibly normalized)
	// speech track. A zero value is treated as unknown and drops the music
	// fade rather than fading at the wrong moment.
	SpeechDuration float64
	MusicPath      string
	Cues           []Cue

	BackgroundVolume float64
	EffectsVolume    float64
	SpeechStartDelay float64
	MusicFadeout     float64
}

// BuildPlan lays the speech, music, and cue layers onto one timeline.
//
// With no music and no cues the plan is the speech track alone. Otherwise
// speech starts at SpeechStartDelay and is end-padded by MusicFadeout,
// music fades out starting when speech finishes, and each cue is delayed
// by its resolved start plus the same global offset.
func BuildPlan(input PlanInput) Plan {
	if input.MusicPath == "" && len(input.Cues) == 0 {
		return Plan{
			SpeechOnly: true,
			Layers: []Layer{{
				Source: input.SpeechPath,
				Label:  "sp",
			}},
		}
	}

	layers := make([]Layer, 0, 2+len(input.Cues))
	layers = append(layers, Layer{
		Source:       input.SpeechPath,
		Label:        "sp",
		DelaySeconds: input.SpeechStartDelay,
		PadSeconds:   input.MusicFadeout,
	})

	if input.MusicPath != "" {
		music := Layer{
			Source: input.MusicPath,
			Label:  "bg",
			Gain:   input.BackgroundVolume,
		}
		if input.SpeechDuration > 0 {
			music.FadeOut = &Fade{
				StartSeconds:    input.SpeechStartDelay + input.SpeechDuration,
				DurationSeconds: input.MusicFadeout,
			}
		}
		layers = append(layers, music)
	}

	for i, cue := range input.Cues {
		layers = append(layers, Layer{
			Source:       cue.Path,
			Label:        cueLabel(i),
			Gain:         input.EffectsVolume,
			DelaySeconds: cue.StartSeconds + input.SpeechStartDelay,
		})
	}

	return Plan{Layers: layers}
}

func cueLabel(i int) string {
	return "fx" + strconv.Itoa(i)
}
