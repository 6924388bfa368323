package config

const (
	defaultStagingDir                = "~/.local/share/soundloom/staging"
	defaultLibraryDir                = "~/soundloom/library"
	defaultLogDir                    = "~/.local/share/soundloom/logs"
	defaultAlignmentCacheDir         = "~/.local/share/soundloom/cache/alignment"
	defaultAPIBind                   = "127.0.0.1:7843"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 60
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultTargetLUFS                = -18.0
	defaultBackgroundVolume          = 0.15
	defaultEffectsVolume             = 0.30
	defaultSpeechStartDelay          = 3.0
	defaultMusicFadeout              = 3.0
	defaultSegmentSilenceGap         = 0.5
	defaultSampleRate                = 44100
	defaultToolTimeout               = 300
	defaultAlignmentModel            = "small"
	defaultAlignmentDevice           = "cpu"
	defaultAlignmentComputeType      = "int8"
	defaultAlignmentLanguage         = "en"
	defaultGenerationBaseURL         = "https://api.replicate.com"
	defaultMusicVersion              = "96af46316252ddea4c6614e31861876183b59dce84bad765f38424e87919dd85"
	defaultEffectsVersion            = "9aff84a639f96d0f7e6081cdea002d15133d0043727f849c40abdd166b7c75a8"
	defaultMusicWaitTimeout          = 600
	defaultEffectsWaitTimeout        = 600
	defaultDownloadTimeout           = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:        defaultStagingDir,
			LibraryDir:        defaultLibraryDir,
			LogDir:            defaultLogDir,
			AlignmentCacheDir: defaultAlignmentCacheDir,
			APIBind:           defaultAPIBind,
		},
		Mix: Mix{
			TargetLUFS:        defaultTargetLUFS,
			BackgroundVolume:  defaultBackgroundVolume,
			EffectsVolume:     defaultEffectsVolume,
			SpeechStartDelay:  defaultSpeechStartDelay,
			MusicFadeout:      defaultMusicFadeout,
			SegmentSilenceGap: defaultSegmentSilenceGap,
			SampleRate:        defaultSampleRate,
			ToolTimeout:       defaultToolTimeout,
		},
		Alignment: Alignment{
			Enabled:     true,
			Model:       defaultAlignmentModel,
			Device:      defaultAlignmentDevice,
			ComputeType: defaultAlignmentComputeType,
			Language:    defaultAlignmentLanguage,
		},
		Generation: Generation{
			BaseURL:            defaultGenerationBaseURL,
			MusicVersion:       defaultMusicVersion,
			EffectsVersion:     defaultEffectsVersion,
			MusicWaitTimeout:   defaultMusicWaitTimeout,
			EffectsWaitTimeout: defaultEffectsWaitTimeout,
			DownloadTimeout:    defaultDownloadTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Runs:           true,
			Generation:     true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
