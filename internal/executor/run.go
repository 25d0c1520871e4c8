package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
)

// waitDelay bounds how long Wait keeps draining output after the process group is killed
const waitDelay = 5 * time.Second

// PlanFile is the sandbox-relative saved plan
const PlanFile = "tfplan"

// Outcome describes one terraform invocation
type Outcome struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
	TimedOut bool
	Err      error
}

// OK reports whether the command exited zero
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Log returns stdout followed by stderr, the content persisted as a command log
func (o Outcome) Log() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	if o.Stdout == "" {
		return o.Stderr
	}
	return o.Stdout + "\n" + o.Stderr
}

// Tool is a staged terraform binary bound to a sandbox
type Tool struct {
	path    string
	dir     string
	env     []string
	timeout time.Duration
}

// Run executes terraform with args in the sandbox. The process runs in its
// own process group and the whole group is killed when the timeout elapses
// or ctx is canceled.
func (t *Tool) Run(ctx context.Context, args ...string) (outcome Outcome) {
	logger := zerolog.Ctx(ctx)
	outcome.Args = args

	subcommand := "terraform"
	if len(args) > 0 {
		subcommand = "terraform " + args[0]
	}

	defer func(begin time.Time) {
		outcome.Elapsed = time.Since(begin)
		logger.Info().
			Interface("error", outcome.Err).
			Strs("args", args).
			Int("exit_code", outcome.ExitCode).
			Bool("timed_out", outcome.TimedOut).
			Dur("duration", outcome.Elapsed).
			Msg("Ran " + subcommand)
	}(time.Now())

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, t.path, args...)
	cmd.Dir = t.dir
	cmd.Env = t.env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	err := cmd.Run()
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return outcome

	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome.ExitCode = -1
		outcome.TimedOut = true
		outcome.Err = fmt.Errorf("%w: %s exceeded %s", tferrors.ErrTimeout, subcommand, t.timeout)

	case ctx.Err() != nil:
		outcome.ExitCode = -1
		outcome.Err = fmt.Errorf("%s canceled: %w", subcommand, ctx.Err())

	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
		outcome.Err = fmt.Errorf("%w: %s exited with code %d: %s", tferrors.ErrToolExecution, subcommand, outcome.ExitCode, strings.TrimSpace(outcome.Stderr))

	default:
		outcome.ExitCode = -1
		outcome.Err = fmt.Errorf("%w: unable to run %s: %v", tferrors.ErrToolExecution, subcommand, err)
	}
	return outcome
}

// Init runs terraform init
func (t *Tool) Init(ctx context.Context) Outcome {
	return t.Run(ctx, "init", "-input=false", "-no-color")
}

// Plan writes a saved plan to PlanFile in the sandbox
func (t *Tool) Plan(ctx context.Context) Outcome {
	return t.Run(ctx, "plan", "-input=false", "-no-color", "-out="+PlanFile)
}

// Apply applies the saved plan without prompting
func (t *Tool) Apply(ctx context.Context) Outcome {
	return t.Run(ctx, "apply", "-input=false", "-no-color", "-auto-approve", PlanFile)
}

// Output returns the root module outputs as JSON
func (t *Tool) Output(ctx context.Context) Outcome {
	return t.Run(ctx, "output", "-json")
}
