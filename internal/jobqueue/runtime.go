package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// StartOptions contains the parameters for starting a job subprocess.
type StartOptions struct {
	Command []string
	Env     map[string]string
	LogPath string
}

// RunResult is the outcome of a finished subprocess.
type RunResult struct {
	ExitCode int
	TimedOut bool
}

// Handle represents a running job execution.
type Handle interface {
	// Wait blocks until the subprocess completes.
	Wait(ctx context.Context) (RunResult, error)

	// Stop forcefully terminates the subprocess.
	Stop() error
}

// Runtime defines the interface for executing jobs. The default is raw OS
// processes; tests substitute their own.
type Runtime interface {
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// ExecRuntime runs jobs as raw OS processes with stdout/stderr captured to
// the per-job log file.
type ExecRuntime struct{}

type execHandle struct {
	cmd     *exec.Cmd
	logFile *os.File
	ctx     context.Context
}

// Start launches the subprocess. The passed context carries the wall-clock
// timeout; when it expires the process is killed and Wait reports TimedOut.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start subprocess: %w", err)
	}
	return &execHandle{cmd: cmd, logFile: logFile, ctx: ctx}, nil
}

func (h *execHandle) Wait(ctx context.Context) (RunResult, error) {
	err := h.cmd.Wait()

	// Trailer line so the log file alone tells the whole story.
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if h.ctx.Err() == nil {
			h.logFile.Close()
			return RunResult{}, fmt.Errorf("wait for subprocess: %w", err)
		}
	}

	timedOut := errors.Is(h.ctx.Err(), context.DeadlineExceeded)
	if timedOut {
		fmt.Fprintf(h.logFile, "\n--- killed: wall-clock timeout ---\n")
		if exitCode == 0 {
			exitCode = -1
		}
	}
	fmt.Fprintf(h.logFile, "\n--- exit code: %d ---\n", exitCode)
	h.logFile.Close()

	return RunResult{ExitCode: exitCode, TimedOut: timedOut}, nil
}

func (h *execHandle) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// buildCommand expands the configured command template for one job.
// A missing template is a policy violation: jobs cannot run without it.
func buildCommand(template, channel, video string) ([]string, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("no job command configured; set COORDPLANE_JOB_COMMAND to the subprocess template (e.g. \"render --channel {channel} --video {video}\")")
	}
	fields := strings.Fields(template)
	out := make([]string, len(fields))
	for i, f := range fields {
		f = strings.ReplaceAll(f, "{channel}", channel)
		f = strings.ReplaceAll(f, "{video}", video)
		out[i] = f
	}
	return out, nil
}
