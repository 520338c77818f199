package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	parsed, err := url.Parse(c.Discovery.ScheduleURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("discovery.schedule_url must be an absolute URL, got %q", c.Discovery.ScheduleURL)
	}
	if c.Discovery.PollInterval < 1 {
		return errors.New("discovery.poll_interval must be at least 1 second")
	}
	return nil
}

func (c *Config) validateRecorder() error {
	if c.Recorder.RestartMaxDelay < c.Recorder.RestartDelay {
		return errors.New("recorder.restart_max_delay must not be below recorder.restart_delay")
	}
	if c.Recorder.RestartCeiling < 1 {
		return errors.New("recorder.restart_ceiling must be at least 1")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if !c.Transcription.Enabled {
		return nil
	}
	if c.Transcription.OverlapSeconds >= c.Transcription.ChunkSeconds {
		return errors.New("transcription.overlap_seconds must be smaller than transcription.chunk_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
}
