package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/pkg/errors"
)

// cronPath is the PATH the schedule definition exports to its commands.
const cronPath = "/usr/local/sbin:/usr/local/bin:/sbin:/bin:/usr/sbin:/usr/bin"

// Crontab renders registered actions into a schedule definition file and
// installs it for the system's periodic-execution facility. Install is an
// atomic overwrite: re-provisioning yields byte-identical action lines,
// never appended duplicates.
type Crontab struct {
	log     logging.Logger
	path    string
	groupID int
	entries []Entry

	reloader Reloader

	// chown is swappable so unprivileged tests can exercise Install.
	chown func(path string, uid, gid int) error
}

func NewCrontab(log logging.Logger, path string, groupID int, reloader Reloader) *Crontab {
	return &Crontab{
		log:      log,
		path:     path,
		groupID:  groupID,
		reloader: reloader,
		chown:    os.Chown,
	}
}

// Register accepts the action's Entry for rendering. The in-process Run
// function is ignored here; cron executes the rendered command line.
func (c *Crontab) Register(a Action) error {
	switch {
	case a.Name == "":
		return errors.New("schedule entry has no name")
	case a.Cadence == nil:
		return errors.Errorf("schedule entry %q has no cadence", a.Name)
	case a.User == "":
		return errors.Errorf("schedule entry %q has no executing identity", a.Name)
	case len(a.Argv) == 0:
		return errors.Errorf("schedule entry %q has no command", a.Name)
	}
	c.entries = append(c.entries, a.Entry)
	return nil
}

// Render produces the schedule definition file content: the environment
// preamble followed by one line per registered entry, in registration
// order. Rendering is deterministic.
func (c *Crontab) Render() []byte {
	var b strings.Builder
	b.WriteString("SHELL=/bin/bash\n")
	b.WriteString("PATH=" + cronPath + "\n")
	fmt.Fprintf(&b, "GROUP_ID=%d\n", c.groupID)
	b.WriteString("\n")
	for _, e := range c.entries {
		fmt.Fprintf(&b, "%s %s %s\n", e.Cadence.Spec(), e.User, e.CommandLine())
	}
	return []byte(b.String())
}

// Install atomically overwrites the schedule definition file (0644, owned
// by root) and asks the periodic facility to reload so the new schedule
// takes effect immediately.
func (c *Crontab) Install(ctx context.Context) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), "."+filepath.Base(c.path)+".*")
	if err != nil {
		return errors.Wrap(err, "unable to stage schedule definition")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(c.Render()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write schedule definition")
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to set schedule definition mode")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to finish schedule definition")
	}
	if err := c.chown(tmp.Name(), 0, 0); err != nil {
		return errors.Wrap(err, "unable to set schedule definition owner")
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return errors.Wrapf(err, "unable to install schedule definition at %q", c.path)
	}
	c.log.WithField("path", c.path).Info("schedule definition installed")

	if c.reloader != nil {
		if err := c.reloader.Reload(ctx); err != nil {
			return errors.WithMessage(err, "schedule installed but not activated")
		}
		c.log.Info("periodic facility reloaded")
	}
	return nil
}
