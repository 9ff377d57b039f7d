// Package schedule models the periodic actions of the client service and
// the backends that run them: a crontab definition file for the installed
// variant and an in-process timer loop for the agent variant.
package schedule

import (
	"context"
	"strings"
)

// Entry is one periodic action record in the schedule definition.
type Entry struct {
	// Name identifies the action in logs and lock files.
	Name string
	// Cadence is the firing rule.
	Cadence Cadence
	// User is the identity the periodic facility runs the command as.
	User string
	// Argv is the command line, argv[0] first.
	Argv []string
	// Output is the log target both actions append to.
	Output string
}

// CommandLine renders the entry's command with output redirection, the
// shape written into the schedule definition file.
func (e Entry) CommandLine() string {
	cmd := strings.Join(e.Argv, " ")
	if e.Output != "" {
		cmd += " >> " + e.Output + " 2>&1"
	}
	return cmd
}

// Action couples an Entry with an optional in-process implementation. The
// crontab backend renders the Entry; the agent loop prefers Run and falls
// back to executing Argv when Run is nil.
type Action struct {
	Entry
	Run func(ctx context.Context) error
}

// Scheduler registers periodic actions with a periodic-execution backend
// and activates them. Provisioning code depends on this interface only,
// so swapping cron for an internal timer loop does not touch the
// Provisioner.
type Scheduler interface {
	Register(Action) error
	// Install makes the registered actions take effect. For the crontab
	// backend this writes the definition file and reloads cron; in-process
	// backends may defer activation to their run loop.
	Install(ctx context.Context) error
}
