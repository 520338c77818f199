package recorder

import (
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// videoArgs builds the ffmpeg invocation for the video target. The stream is
// copied without re-encoding.
func videoArgs(streamURL, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", streamURL,
		"-c", "copy",
		outputPath,
	}
}

// audioArgs builds the ffmpeg invocation for the audio target. The audio
// stream is transcoded to MP3 so the transcription pipeline can window it.
func audioArgs(streamURL, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", streamURL,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		outputPath,
	}
}

// newCaptureCommand prepares an ffmpeg command in its own process group so
// that signals reach ffmpeg and any children it spawns.
func newCaptureCommand(binary string, args []string) *exec.Cmd {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// signalGroup delivers sig to the command's process group.
func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, sig)
}

// drainProcess asks ffmpeg to finish writing its output and waits up to
// drainTimeout before killing the process group. done must receive the
// cmd.Wait result exactly once.
func drainProcess(cmd *exec.Cmd, done <-chan error, drainTimeout time.Duration) {
	_ = signalGroup(cmd, unix.SIGINT)
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		_ = signalGroup(cmd, unix.SIGKILL)
		<-done
	}
}

// killProcess forcibly terminates the process group and reaps the process.
func killProcess(cmd *exec.Cmd, done <-chan error) {
	_ = signalGroup(cmd, unix.SIGKILL)
	<-done
}

func redactURL(url string) string {
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		return url[:idx]
	}
	return url
}
