package provision

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/sirupsen/logrus"
)

// DefaultPackages is the fixed dependency set of the launcher: the
// interpreter runtime, the TLS toolkit and the certificate bundle.
var DefaultPackages = []string{"python3", "openssl", "ca-certificates"}

// PackageCommand binds to the host's package manager.
type PackageCommand interface {
	// RefreshIndex updates the package index. A refresh failure is fatal
	// to the install.
	RefreshIndex(ctx context.Context) error
	// Install installs the named packages, assuming yes to prompts.
	Install(ctx context.Context, pkgs ...string) error
}

type aptGet struct {
	log logging.Logger
}

func (a *aptGet) runOk(cmd *exec.Cmd) error {
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")

	var buf bytes.Buffer
	writer := bufio.NewWriter(&buf)
	cmd.Stdout = writer
	cmd.Stderr = writer

	if logging.Debuggable {
		a.log.WithFields(logrus.Fields{
			"cmd": cmd.String(),
		}).Debug("executing")
	}

	err := cmd.Run()
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"cmd":    cmd.String(),
			"output": buf.String(),
		}).WithError(err).Error("package manager command failed")
		return err
	}
	if logging.Debuggable {
		a.log.WithFields(logrus.Fields{
			"cmd":    cmd.String(),
			"output": buf.String(),
		}).Debug("command completed successfully")
	}
	return nil
}

func (a *aptGet) RefreshIndex(ctx context.Context) error {
	return a.runOk(exec.CommandContext(ctx, "apt-get", "update"))
}

func (a *aptGet) Install(ctx context.Context, pkgs ...string) error {
	args := append([]string{"install", "-y"}, pkgs...)
	return a.runOk(exec.CommandContext(ctx, "apt-get", args...))
}
