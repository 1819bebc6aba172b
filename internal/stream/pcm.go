package stream

import (
	"bytes"
	"context"
	"io"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// PCMStreamer runs ffmpeg to decode a local audio file into s16le 48 kHz stereo PCM.
type PCMStreamer struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc
}

func StartPCMStream(ctx context.Context, path string) (*PCMStreamer, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", "2",
		"-ar", "48000",
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "ffmpeg stdout")
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "ffmpeg start")
	}
	return &PCMStreamer{cmd: cmd, stdout: stdout, stderr: stderr, cancel: cancel}, nil
}

func (s *PCMStreamer) Stdout() io.Reader { return s.stdout }

// Stderr is ffmpeg's diagnostic output; only meaningful after Close.
func (s *PCMStreamer) Stderr() string { return s.stderr.String() }

func (s *PCMStreamer) Close() {
	s.cancel()
	_ = s.cmd.Wait()
}
