package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDiscovery()
	c.normalizeRecorder()
	c.normalizeTranscription()
	c.normalizeTriggers()
	c.normalizeWatcher()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.ScheduleURL = strings.TrimSpace(c.Discovery.ScheduleURL)
	if c.Discovery.ScheduleURL == "" {
		c.Discovery.ScheduleURL = defaultScheduleURL
	}
	if c.Discovery.PollInterval <= 0 {
		c.Discovery.PollInterval = defaultPollInterval
	}
	if c.Discovery.RequestTimeout <= 0 {
		c.Discovery.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeRecorder() {
	c.Recorder.FFmpegBinary = strings.TrimSpace(c.Recorder.FFmpegBinary)
	if c.Recorder.StartupTimeout <= 0 {
		c.Recorder.StartupTimeout = defaultStartupTimeout
	}
	if c.Recorder.StallTimeout <= 0 {
		c.Recorder.StallTimeout = defaultStallTimeout
	}
	if c.Recorder.RestartDelay <= 0 {
		c.Recorder.RestartDelay = defaultRestartDelay
	}
	if c.Recorder.RestartMaxDelay < c.Recorder.RestartDelay {
		c.Recorder.RestartMaxDelay = defaultRestartMaxDelay
	}
	if c.Recorder.RestartCeiling <= 0 {
		c.Recorder.RestartCeiling = defaultRestartCeiling
	}
	if c.Recorder.StopDrainTimeout <= 0 {
		c.Recorder.StopDrainTimeout = defaultStopDrainTimeout
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultLanguage
	}
	if c.Transcription.ChunkSeconds <= 0 {
		c.Transcription.ChunkSeconds = defaultChunkSeconds
	}
	if c.Transcription.OverlapSeconds < 0 {
		c.Transcription.OverlapSeconds = defaultOverlapSeconds
	}
	if c.Transcription.MaxLagSeconds <= 0 {
		c.Transcription.MaxLagSeconds = defaultMaxLagSeconds
	}
	if c.Transcription.InferenceTimeout <= 0 {
		c.Transcription.InferenceTimeout = defaultInferenceTimeout
	}
}

func (c *Config) normalizeTriggers() {
	phrases := make([]string, 0, len(c.Triggers.Phrases))
	seen := make(map[string]struct{}, len(c.Triggers.Phrases))
	for _, phrase := range c.Triggers.Phrases {
		trimmed := strings.TrimSpace(phrase)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		phrases = append(phrases, trimmed)
	}
	c.Triggers.Phrases = phrases
}

func (c *Config) normalizeWatcher() {
	if c.Watcher.HeartbeatInterval <= 0 {
		c.Watcher.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Watcher.TeardownTimeout <= 0 {
		c.Watcher.TeardownTimeout = defaultTeardownTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
