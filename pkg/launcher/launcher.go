// Package launcher invokes the external launcher program that executes
// the queued tasks. The launcher is opaque beyond its argv contract.
package launcher

import (
	"context"
	"os"
	"os/exec"
	"strconv"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Argv renders the launcher's fixed positional argument contract: group
// identity, task file path, update endpoint, test-mode flag. The flag is
// the literal "True"/"False" string the launcher parses.
func Argv(bin string, groupID int, tasksFile, updateEndPoint string, test bool) []string {
	flag := "False"
	if test {
		flag = "True"
	}
	return []string{bin, strconv.Itoa(groupID), tasksFile, updateEndPoint, flag}
}

// Invoker runs one launcher invocation per call, appending the combined
// output to the shared log. Invocations are independent: a failure is
// returned for the caller to log but never stops future runs.
type Invoker struct {
	log    logging.Logger
	argv   []string
	output string

	// Bin is the execution binding, swappable in tests.
	Bin Command
}

// Command is the execution binding for the launcher program.
type Command interface {
	Run(ctx context.Context, argv []string, output string) error
}

func NewInvoker(log logging.Logger, argv []string, output string) (*Invoker, error) {
	if len(argv) == 0 {
		return nil, errors.New("launcher argv must not be empty")
	}
	return &Invoker{
		log:    log,
		argv:   argv,
		output: output,
		Bin:    &executable{},
	}, nil
}

// Invoke performs one launcher run.
func (i *Invoker) Invoke(ctx context.Context) error {
	if logging.Debuggable {
		i.log.WithFields(logrus.Fields{
			"argv": i.argv,
		}).Debug("invoking launcher")
	}
	if err := i.Bin.Run(ctx, i.argv, i.output); err != nil {
		return errors.Wrapf(err, "launcher %s", i.argv[0])
	}
	return nil
}

// System returns the real execution binding.
func System() Command {
	return &executable{}
}

type executable struct{}

func (e *executable) Run(ctx context.Context, argv []string, output string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	if output != "" {
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "unable to open log %q", output)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	return cmd.Run()
}
