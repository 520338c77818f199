package transcribe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// extractWindow pulls a time window out of the growing capture audio as a
// mono 16kHz WAV suitable for whisper.
func extractWindow(ctx context.Context, ffmpegBinary, source string, startSec, durationSec float64, dest string) error {
	if durationSec <= 0 {
		return fmt.Errorf("extract window: invalid duration %.2f", durationSec)
	}
	if startSec < 0 {
		startSec = 0
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract window: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
