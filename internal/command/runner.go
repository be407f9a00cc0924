package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	// Env entries are appended to the parent environment.
	Env []string
	Dir string
}

// Result carries the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external export/import tools (pg_dump, psql, mc).
// Orchestrators depend only on this interface so tests can substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands through os/exec. A non-zero exit is not an error;
// callers inspect Result.ExitCode. The returned error covers spawn failures
// only (binary missing, context cancelled before start).
type ExecRunner struct {
	logger zerolog.Logger
}

func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "command-runner").Logger()}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().Str("cmd", c.Name).Strs("args", c.Args).Msg("executing command")

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, err
}
