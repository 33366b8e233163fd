// Package xcmd runs user-configured external commands. Transfer and archive
// backends that delegate to tools like curl or tar are built on it.
package xcmd

import (
	"context"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/common"
)

// tail keeps the last few output lines of a command so a failure can be
// reported without replaying the full transcript.
const tailLines = 8

// Split parses a configured command template into an argv slice using shell
// quoting rules. Placeholders like {url} stay intact inside their argument.
func Split(template string) ([]string, error) {
	argv, err := shellquote.Split(template)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse command %q", template)
	}
	if len(argv) == 0 {
		return nil, errors.Errorf("command %q is empty", template)
	}
	return argv, nil
}

// Expand substitutes {name} placeholders in every argument. Unknown
// placeholders are left alone so they surface verbatim in tool output.
func Expand(argv []string, vars map[string]string) []string {
	expanded := make([]string, len(argv))
	for i, arg := range argv {
		for name, value := range vars {
			arg = strings.ReplaceAll(arg, "{"+name+"}", value)
		}
		expanded[i] = arg
	}
	return expanded
}

// Runner executes commands with a fixed working directory and environment.
// The zero value runs in the current directory with the caller's environment.
type Runner struct {
	Dir string
	Env []string
}

// Run executes argv[0] with the remaining arguments. Output is streamed to
// the context logger at debug level, and the last lines are repeated in the
// returned error when the command fails.
func (r *Runner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command given")
	}

	logger := common.Logger(ctx)

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}

	var tail []string
	output := common.NewLineWriter(func(line string) {
		line = strings.TrimRight(line, "\n")
		logger.Debugf("  | %s", line)
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}
	})

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.Stdout = output
	cmd.Stderr = output

	logger.Debugf("running command: %s", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		if len(tail) > 0 {
			return errors.WithMessagef(err, "command %q failed: %s", argv[0], strings.Join(tail, "; "))
		}
		return errors.WithMessagef(err, "command %q failed", argv[0])
	}
	return nil
}
