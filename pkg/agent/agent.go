// Package agent runs the client service schedule in-process, replacing
// the cron-based variant with an internal timer loop. Each registered
// action fires on its own cadence, guarded by a lock file so a run that
// outlives its interval is skipped rather than stacked.
package agent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/launcher"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/lockfile"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/schedule"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/workgroup"
	"github.com/pkg/errors"
)

type Agent struct {
	log     logging.Logger
	lockDir string
	actions []schedule.Action

	// exec runs actions that have no in-process implementation.
	exec launcher.Command
}

func New(log logging.Logger, lockDir string) *Agent {
	return &Agent{
		log:     log,
		lockDir: lockDir,
		exec:    launcher.System(),
	}
}

// Register accepts a periodic action. Satisfies schedule.Scheduler, so a
// Provisioner can target the agent exactly as it targets the crontab.
func (a *Agent) Register(action schedule.Action) error {
	switch {
	case action.Name == "":
		return errors.New("action has no name")
	case action.Cadence == nil:
		return errors.Errorf("action %q has no cadence", action.Name)
	case action.Run == nil && len(action.Argv) == 0:
		return errors.Errorf("action %q has neither a run function nor a command", action.Name)
	}
	a.actions = append(a.actions, action)
	return nil
}

// Install is part of schedule.Scheduler. The agent's schedule takes
// effect when Run starts the loops, so there is nothing to activate here.
func (a *Agent) Install(ctx context.Context) error {
	return nil
}

// Run drives every registered action until the context is cancelled.
// Action failures are logged per cycle and never stop the schedule; one
// misbehaving action cannot take the other down.
func (a *Agent) Run(ctx context.Context) error {
	if len(a.actions) == 0 {
		return errors.New("no actions registered")
	}
	a.log.WithField("actions", len(a.actions)).Debug("starting")
	defer a.log.Debug("finished")

	group := workgroup.WithContext(ctx)
	for _, action := range a.actions {
		action := action
		group.Work(func(ctx context.Context) error {
			a.loop(ctx, action)
			return nil
		})
	}
	return group.Wait()
}

func (a *Agent) loop(ctx context.Context, action schedule.Action) {
	log := a.log.WithField("action", action.Name)

	timer := time.NewTimer(time.Until(action.Cadence.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.fire(ctx, log, action)
		}
		timer.Reset(time.Until(action.Cadence.Next(time.Now())))
	}
}

func (a *Agent) fire(ctx context.Context, log logging.Logger, action schedule.Action) {
	lock := lockfile.New(filepath.Join(a.lockDir, action.Name+".lock"))
	if err := lock.TryLock(); err == lockfile.ErrHeld {
		log.Warn("previous run still in progress, skipping cycle")
		return
	} else if err != nil {
		log.WithError(err).Error("unable to acquire action lock")
		return
	}
	defer lock.Unlock()

	run := action.Run
	if run == nil {
		run = func(ctx context.Context) error {
			return a.exec.Run(ctx, action.Argv, action.Output)
		}
	}

	if err := run(ctx); err != nil {
		log.WithError(err).Error("action failed")
		return
	}
	log.Debug("action completed")
}
