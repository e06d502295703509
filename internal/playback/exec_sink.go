package playback

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

// ExecSink writes each buffer to a temporary wav file and runs an external
// player (aplay, afplay, ffplay ...) with the file path as last argument.
// Buffers are played one at a time.
type ExecSink struct {
	cmd    []string
	mu     sync.Mutex
	logger *slog.Logger
}

func NewExecSink(command string, logger *slog.Logger) (*ExecSink, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &ExecSink{cmd: args, logger: logger.With(slog.String("component", "exec-sink"))}, nil
}

func (e *ExecSink) Play(ctx context.Context, buf *audio.Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil
	}

	file, err := os.CreateTemp("", "narration-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(file.Name())
	if err := audio.WriteWAV(file, buf); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp wav: %w", err)
	}

	args := append(append([]string{}, e.cmd[1:]...), file.Name())
	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			// stopped mid-buffer
			return nil
		}
		return fmt.Errorf("playback command failed: %w: %s", err, stderr.String())
	}
	return nil
}
