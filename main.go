package main

import (
	"context"
	"flag"
	"os"
	"syscall"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/agent"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/config"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/groupid"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/launcher"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/provision"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/schedule"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/sigcontext"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/tasks"
	"github.com/pkg/errors"
)

var (
	flagInstall    = flag.Bool("install", false, "Run the one-time install")
	flagAgent      = flag.Bool("agent", false, "Run the periodic schedule in-process instead of cron")
	flagConfig     = flag.String("config", "config.env", "Path to the KEY=value configuration source")
	flagCronFile   = flag.String("cron-file", "/etc/cron.d/clientservice", "Schedule definition file the install writes")
	flagRewriteEnv = flag.Bool("rewrite-env", false, "Persist GROUP_ID idempotently instead of appending")
	flagLogDebug   = flag.Bool("debug", false, "")
)

func main() {
	flag.Parse()

	if *flagLogDebug {
		logging.Set(logging.Level("debug"))
	}

	log := logging.New("main")

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.WithError(err).Fatalf("configuration")
	}
	if cfg.Test {
		// test mode turns on the diagnostic verbosity the operators ask
		// for when reproducing installs
		logging.Set(logging.Level("debug"))
	}

	ctx, cancel := sigcontext.WithSignalCancel(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *flagInstall && *flagAgent:
		log.Error("cannot run both install and agent")
		os.Exit(1)
	case !*flagInstall && !*flagAgent:
		log.Error("no mode specified, provide either -install or -agent")
		flag.Usage()
		os.Exit(1)
	case *flagInstall:
		err = runInstall(ctx, cfg, *flagConfig, *flagCronFile, *flagRewriteEnv)
		if err != nil {
			log.WithError(err).Fatalf("install failed")
		}
	case *flagAgent:
		err = runAgent(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatalf("agent stopped")
		}
	}
	log.Info("client service done")
}

func runInstall(ctx context.Context, cfg *config.Config, configSource, cronFile string, rewriteEnv bool) error {
	log := logging.New("install")

	var resolver groupid.Resolver
	if cfg.Test {
		resolver = &groupid.Static{Value: groupid.TestDefault}
	} else {
		resolver = &groupid.Interactive{In: os.Stdin, Out: os.Stdout}
	}

	fetcher := tasks.NewFetcher(logging.New("tasks"), true, tasks.DefaultTimeout)
	newScheduler := func(groupID int) schedule.Scheduler {
		return schedule.NewCrontab(logging.New("crontab"), cronFile, groupID, &schedule.ServiceRestart{
			Log: logging.New("systemd"),
		})
	}

	p := provision.New(log, cfg, configSource, resolver, fetcher, newScheduler)
	if rewriteEnv {
		p.UsePersist(groupid.Rewrite)
	}
	return errors.WithMessage(p.Run(ctx), "run error")
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	log := logging.New("agent")
	if err := logging.Set(logging.TeeFile(cfg.CronLog)); err != nil {
		return errors.WithMessage(err, "could not open log target")
	}

	groupID, err := groupid.Read(cfg.EnvFile)
	if err != nil {
		return errors.WithMessage(err, "agent requires an installed group identity")
	}

	fetcher := tasks.NewFetcher(logging.New("tasks"), true, tasks.DefaultTimeout)
	invoker, err := launcher.NewInvoker(logging.New("launcher"),
		launcher.Argv(cfg.Launcher, groupID, cfg.TasksFile, cfg.UpdateEndPoint, cfg.Test), cfg.CronLog)
	if err != nil {
		return err
	}

	a := agent.New(log, cfg.RuntimeDir)
	err = a.Register(schedule.Action{
		Entry: schedule.Entry{
			Name:    "task-refresh",
			Cadence: schedule.TaskRefreshCadence(),
			Output:  cfg.CronLog,
		},
		Run: func(ctx context.Context) error {
			return fetcher.Fetch(ctx, cfg.TasksEndPoint, cfg.TasksFile)
		},
	})
	if err != nil {
		return err
	}
	err = a.Register(schedule.Action{
		Entry: schedule.Entry{
			Name:    "launcher-invocation",
			Cadence: schedule.LauncherCadence(),
			Output:  cfg.CronLog,
		},
		Run: invoker.Invoke,
	})
	if err != nil {
		return err
	}

	return errors.WithMessage(a.Run(ctx), "run error")
}
