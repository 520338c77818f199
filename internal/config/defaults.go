package config

const (
	defaultRecordingsDir = "~/.local/share/gavel/recordings"
	defaultLogDir        = "~/.local/share/gavel/logs"
	defaultWorkDir       = "~/.local/share/gavel/work"

	defaultScheduleURL    = "https://www.senate.gov/legislative/schedule/floor_schedule.json"
	defaultPollInterval   = 15
	defaultRequestTimeout = 10

	defaultStartupTimeout   = 10
	defaultStallTimeout     = 30
	defaultRestartDelay     = 5
	defaultRestartMaxDelay  = 60
	defaultRestartCeiling   = 5
	defaultStopDrainTimeout = 10

	defaultTranscriptionModel = "base"
	defaultLanguage           = "en"
	defaultChunkSeconds       = 30
	defaultOverlapSeconds     = 2
	defaultMaxLagSeconds      = 45
	defaultInferenceTimeout   = 300
	defaultInitialPrompt      = "United States Senate proceedings."

	defaultTriggerPhrase = "unanimous consent"

	defaultNtfyRequestTimeout = 10

	defaultHeartbeatInterval = 15
	defaultTeardownTimeout   = 30

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
			WorkDir:       defaultWorkDir,
		},
		Discovery: Discovery{
			ScheduleURL:    defaultScheduleURL,
			PollInterval:   defaultPollInterval,
			RequestTimeout: defaultRequestTimeout,
		},
		Recorder: Recorder{
			StartupTimeout:   defaultStartupTimeout,
			StallTimeout:     defaultStallTimeout,
			RestartDelay:     defaultRestartDelay,
			RestartMaxDelay:  defaultRestartMaxDelay,
			RestartCeiling:   defaultRestartCeiling,
			StopDrainTimeout: defaultStopDrainTimeout,
		},
		Transcription: Transcription{
			Enabled:          true,
			Model:            defaultTranscriptionModel,
			Language:         defaultLanguage,
			ChunkSeconds:     defaultChunkSeconds,
			OverlapSeconds:   defaultOverlapSeconds,
			MaxLagSeconds:    defaultMaxLagSeconds,
			InferenceTimeout: defaultInferenceTimeout,
			InitialPrompt:    defaultInitialPrompt,
		},
		Triggers: Triggers{
			Phrases: []string{defaultTriggerPhrase},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			SessionStart:   true,
			SessionEnd:     true,
			Triggers:       true,
			Errors:         true,
		},
		Watcher: Watcher{
			HeartbeatInterval: defaultHeartbeatInterval,
			TeardownTimeout:   defaultTeardownTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
