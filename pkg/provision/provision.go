// Package provision performs the one-time install of the client service:
// runtime directory, group identity, system packages, the initial task
// fetch and the periodic schedule. Steps are strictly ordered and
// fail-fast; the last logged line names the failing step.
package provision

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/config"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/groupid"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/launcher"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/schedule"
	"github.com/pkg/errors"
)

// Fetcher is the task-list retrieval dependency.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint, dest string) error
}

// Provisioner wires the install steps together. The schedule backend is
// produced by a factory once the group identity is known, so swapping the
// crontab for an in-process scheduler changes nothing here.
type Provisioner struct {
	log          logging.Logger
	cfg          *config.Config
	configSource string

	resolver     groupid.Resolver
	fetcher      Fetcher
	newScheduler func(groupID int) schedule.Scheduler

	packages PackageCommand

	// persist records the group identity in the runtime environment file.
	// groupid.Append preserves the reference behavior, groupid.Rewrite is
	// the idempotent mode.
	persist func(envFile string, value int) error

	// hooks for privileged or destructive syscalls
	geteuid   func() int
	removeAll func(path string) error
}

func New(log logging.Logger, cfg *config.Config, configSource string, resolver groupid.Resolver, fetcher Fetcher, newScheduler func(groupID int) schedule.Scheduler) *Provisioner {
	return &Provisioner{
		log:          log,
		cfg:          cfg,
		configSource: configSource,
		resolver:     resolver,
		fetcher:      fetcher,
		newScheduler: newScheduler,
		packages:     &aptGet{log: log.WithField("step", "packages")},
		persist:      groupid.Append,
		geteuid:      os.Geteuid,
		removeAll:    os.RemoveAll,
	}
}

// UsePersist selects the group-identity persistence mode.
func (p *Provisioner) UsePersist(persist func(envFile string, value int) error) {
	p.persist = persist
}

// Run executes the install from privilege check to schedule activation.
func (p *Provisioner) Run(ctx context.Context) error {
	if err := p.checkPrivilege(); err != nil {
		p.log.WithField("step", "privilege").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "privilege").Info("ok")

	if err := p.prepareRuntimeDirectory(); err != nil {
		p.log.WithField("step", "runtime-dir").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "runtime-dir").Info("ok")

	gid, err := p.resolveGroupIdentity()
	if err != nil {
		p.log.WithField("step", "group-id").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "group-id").WithField("group_id", gid).Info("ok")

	if err := p.ensureSystemPackages(ctx); err != nil {
		p.log.WithField("step", "packages").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "packages").Info("ok")

	// Prime the task file and prove the endpoint reachable before any
	// schedule is written.
	if err := p.fetcher.Fetch(ctx, p.cfg.TasksEndPoint, p.cfg.TasksFile); err != nil {
		p.log.WithField("step", "initial-fetch").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "initial-fetch").Info("ok")

	if err := p.installSchedule(ctx, gid); err != nil {
		p.log.WithField("step", "schedule").WithError(err).Error("failed")
		return err
	}
	p.log.WithField("step", "schedule").Info("ok")

	p.log.Info("client service installed")

	if p.cfg.RemoveSelf && !p.cfg.Test {
		if err := p.removeAll(p.cfg.BaseDir); err != nil {
			p.log.WithField("step", "remove-self").WithError(err).Warn("unable to remove install source")
			return errors.Wrapf(err, "unable to remove %q", p.cfg.BaseDir)
		}
		p.log.WithField("step", "remove-self").Info("install source removed")
	}

	return nil
}

func (p *Provisioner) checkPrivilege() error {
	if p.geteuid() != 0 {
		return ErrPrivilege
	}
	return nil
}

// prepareRuntimeDirectory creates the runtime directory and stages the
// program artifact and the configuration source into it. Safe to re-run.
func (p *Provisioner) prepareRuntimeDirectory() error {
	if err := os.MkdirAll(p.cfg.RuntimeDir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create runtime directory %q", p.cfg.RuntimeDir)
	}
	if err := copyFile(p.cfg.Program, filepath.Join(p.cfg.RuntimeDir, filepath.Base(p.cfg.Program))); err != nil {
		return errors.WithMessage(err, "unable to stage program artifact")
	}
	// The runtime environment file is staged once and then owned by the
	// service: re-provisioning must not wipe the persisted group identity.
	if _, err := os.Stat(p.cfg.EnvFile); os.IsNotExist(err) {
		if err := copyFile(p.configSource, p.cfg.EnvFile); err != nil {
			return errors.WithMessage(err, "unable to stage configuration")
		}
	}
	return nil
}

func (p *Provisioner) resolveGroupIdentity() (int, error) {
	gid, err := p.resolver.Resolve()
	if err != nil {
		return 0, errors.WithMessage(err, "unable to resolve group identity")
	}
	if err := p.persist(p.cfg.EnvFile, gid); err != nil {
		return 0, errors.WithMessage(err, "unable to persist group identity")
	}
	return gid, nil
}

func (p *Provisioner) ensureSystemPackages(ctx context.Context) error {
	if err := p.packages.RefreshIndex(ctx); err != nil {
		return &PackageError{Step: "index refresh", Err: err}
	}
	if err := p.packages.Install(ctx, DefaultPackages...); err != nil {
		return &PackageError{Step: "install", Err: err}
	}
	return nil
}

func (p *Provisioner) installSchedule(ctx context.Context, gid int) error {
	sched := p.newScheduler(gid)
	for _, action := range p.Actions(gid) {
		if err := sched.Register(action); err != nil {
			return errors.WithMessagef(err, "unable to register %q", action.Name)
		}
	}
	return sched.Install(ctx)
}

// Actions builds the two periodic actions of the client service with the
// reference cadences: the daily task refresh and the ten-minute launcher
// invocation.
func (p *Provisioner) Actions(gid int) []schedule.Action {
	return []schedule.Action{
		{Entry: schedule.Entry{
			Name:    "task-refresh",
			Cadence: schedule.TaskRefreshCadence(),
			User:    "root",
			Argv:    []string{"curl", "-k", "-fsS", p.cfg.TasksEndPoint, "-o", p.cfg.TasksFile},
			Output:  p.cfg.CronLog,
		}},
		{Entry: schedule.Entry{
			Name:    "launcher-invocation",
			Cadence: schedule.LauncherCadence(),
			User:    "root",
			Argv:    launcher.Argv(p.cfg.Launcher, gid, p.cfg.TasksFile, p.cfg.UpdateEndPoint, p.cfg.Test),
			Output:  p.cfg.CronLog,
		}},
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "unable to open %q", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "unable to stat %q", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "unable to create %q", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "unable to copy %q to %q", src, dst)
	}
	return errors.Wrapf(out.Close(), "unable to finish %q", dst)
}
