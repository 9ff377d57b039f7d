package provision

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/config"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/groupid"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/internal/testoutput"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/schedule"
	"github.com/GuillermoLopezEsteve/ClientService/pkg/tasks"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

type testFetcher struct {
	calls int
	dest  string
	fn    func(ctx context.Context, endpoint, dest string) error
}

func (f *testFetcher) Fetch(ctx context.Context, endpoint, dest string) error {
	f.calls++
	f.dest = dest
	if f.fn != nil {
		return f.fn(ctx, endpoint, dest)
	}
	return os.WriteFile(dest, []byte("{}"), 0644)
}

type testScheduler struct {
	groupID   int
	actions   []schedule.Action
	installed int
	installFn func(ctx context.Context) error
}

func (s *testScheduler) Register(a schedule.Action) error {
	s.actions = append(s.actions, a)
	return nil
}

func (s *testScheduler) Install(ctx context.Context) error {
	s.installed++
	if s.installFn != nil {
		return s.installFn(ctx)
	}
	return nil
}

type testPackages struct {
	refreshed int
	installed [][]string
	refreshFn func() error
	installFn func(pkgs []string) error
}

func (p *testPackages) RefreshIndex(ctx context.Context) error {
	p.refreshed++
	if p.refreshFn != nil {
		return p.refreshFn()
	}
	return nil
}

func (p *testPackages) Install(ctx context.Context, pkgs ...string) error {
	p.installed = append(p.installed, pkgs)
	if p.installFn != nil {
		return p.installFn(pkgs)
	}
	return nil
}

type testHarness struct {
	cfg       *config.Config
	fetcher   *testFetcher
	scheduler *testScheduler
	packages  *testPackages
	removed   []string
}

func testConfig(t *testing.T) (*config.Config, string) {
	base := t.TempDir()
	runtime := filepath.Join(t.TempDir(), "runtime")

	program := filepath.Join(base, "clientservice.py")
	assert.NilError(t, os.WriteFile(program, []byte("#!/usr/bin/env python3\n"), 0755))
	source := filepath.Join(base, "config.env")
	assert.NilError(t, os.WriteFile(source, []byte("WEB_SERVER=reports.example.net\n"), 0644))

	return &config.Config{
		RuntimeDir:     runtime,
		WebServer:      "reports.example.net",
		EnvFile:        filepath.Join(runtime, "service.env"),
		Launcher:       filepath.Join(runtime, "clientservice.py"),
		TasksFile:      filepath.Join(runtime, "tasks.json"),
		CronLog:        filepath.Join(runtime, "clientservice.log"),
		TasksEndPoint:  "https://tasks.example.net/tasks.json",
		UpdateEndPoint: "https://tasks.example.net/update",
		Program:        program,
		BaseDir:        base,
		RemoveSelf:     false,
		Test:           false,
	}, source
}

func testProvisioner(t *testing.T, resolver groupid.Resolver) (*Provisioner, *testHarness) {
	cfg, source := testConfig(t)
	h := &testHarness{
		cfg:       cfg,
		fetcher:   &testFetcher{},
		scheduler: &testScheduler{},
		packages:  &testPackages{},
	}
	p := New(testoutput.Logger(t, logging.New("provision")), cfg, source, resolver, h.fetcher, func(gid int) schedule.Scheduler {
		h.scheduler.groupID = gid
		return h.scheduler
	})
	p.packages = h.packages
	p.geteuid = func() int { return 0 }
	p.removeAll = func(path string) error {
		h.removed = append(h.removed, path)
		return nil
	}
	return p, h
}

func TestRunHappyPath(t *testing.T) {
	// scenario: operator answers "7" then "y"
	p, h := testProvisioner(t, &groupid.Interactive{
		In:  strings.NewReader("7\ny\n"),
		Out: os.Stderr,
	})

	assert.NilError(t, p.Run(context.Background()))

	// staged artifacts
	_, err := os.Stat(filepath.Join(h.cfg.RuntimeDir, "clientservice.py"))
	assert.NilError(t, err)
	envData, err := os.ReadFile(h.cfg.EnvFile)
	assert.NilError(t, err)
	assert.Check(t, strings.Contains(string(envData), "GROUP_ID=7"))

	// packages ensured, index refreshed first
	assert.Equal(t, h.packages.refreshed, 1)
	assert.Equal(t, len(h.packages.installed), 1)
	assert.DeepEqual(t, h.packages.installed[0], DefaultPackages)

	// initial fetch primed the task file
	assert.Equal(t, h.fetcher.calls, 1)
	assert.Equal(t, h.fetcher.dest, h.cfg.TasksFile)

	// schedule built for group 7, with both actions, and activated
	assert.Equal(t, h.scheduler.groupID, 7)
	assert.Equal(t, h.scheduler.installed, 1)
	assert.Equal(t, len(h.scheduler.actions), 2)

	refresh := h.scheduler.actions[0]
	assert.Equal(t, refresh.Name, "task-refresh")
	assert.Check(t, strings.Contains(refresh.CommandLine(), h.cfg.TasksEndPoint))

	invoke := h.scheduler.actions[1]
	assert.Equal(t, invoke.Name, "launcher-invocation")
	assert.Equal(t, invoke.Argv[1], "7")
	assert.Equal(t, invoke.Argv[4], "False")

	// REMOVE_SELF off: source retained
	assert.Equal(t, len(h.removed), 0)
}

func TestRunTestModeNeverPrompts(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: groupid.TestDefault})
	h.cfg.Test = true

	assert.NilError(t, p.Run(context.Background()))
	assert.Equal(t, h.scheduler.groupID, 3)
	// test mode renders the launcher flag as True
	assert.Equal(t, h.scheduler.actions[1].Argv[4], "True")
}

func TestRunWithoutPrivilege(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	p.geteuid = func() int { return 1000 }

	assert.Equal(t, p.Run(context.Background()), ErrPrivilege)

	// nothing touched the filesystem
	_, err := os.Stat(h.cfg.RuntimeDir)
	assert.Check(t, os.IsNotExist(err))
	assert.Equal(t, h.fetcher.calls, 0)
	assert.Equal(t, h.scheduler.installed, 0)
}

func TestRunAbortsBeforeScheduleOnFetchFailure(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.fetcher.fn = func(ctx context.Context, endpoint, dest string) error {
		return &tasks.FetchError{Endpoint: endpoint, Err: errors.New("connection refused")}
	}

	err := p.Run(context.Background())
	assert.Check(t, err != nil)
	_, ok := err.(*tasks.FetchError)
	assert.Check(t, ok)

	// no schedule was written or activated
	assert.Equal(t, h.scheduler.installed, 0)
	assert.Equal(t, len(h.scheduler.actions), 0)
}

func TestRunPackageIndexFailureIsFatal(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.packages.refreshFn = func() error { return errors.New("mirror unreachable") }

	err := p.Run(context.Background())
	pkgErr, ok := err.(*PackageError)
	assert.Check(t, ok)
	assert.Equal(t, pkgErr.Step, "index refresh")
	assert.Equal(t, h.fetcher.calls, 0)
}

func TestRunPackageInstallFailureIsFatal(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.packages.installFn = func([]string) error { return errors.New("no candidate") }

	err := p.Run(context.Background())
	pkgErr, ok := err.(*PackageError)
	assert.Check(t, ok)
	assert.Equal(t, pkgErr.Step, "install")
	assert.Equal(t, h.scheduler.installed, 0)
}

func TestRunRemoveSelf(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.cfg.RemoveSelf = true

	assert.NilError(t, p.Run(context.Background()))
	assert.DeepEqual(t, h.removed, []string{h.cfg.BaseDir})
}

func TestRunRemoveSelfSkippedInTestMode(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.cfg.RemoveSelf = true
	h.cfg.Test = true

	assert.NilError(t, p.Run(context.Background()))
	assert.Equal(t, len(h.removed), 0)
}

func TestRunTwiceAccumulatesGroupIDByDefault(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 4})

	assert.NilError(t, p.Run(context.Background()))
	assert.NilError(t, p.Run(context.Background()))

	data, err := os.ReadFile(h.cfg.EnvFile)
	assert.NilError(t, err)
	// the reference append behavior: one line per provisioning run
	assert.Equal(t, strings.Count(string(data), "GROUP_ID=4"), 2)
}

func TestRunRewriteModeKeepsSingleGroupID(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 4})
	p.UsePersist(groupid.Rewrite)

	assert.NilError(t, p.Run(context.Background()))
	assert.NilError(t, p.Run(context.Background()))

	data, err := os.ReadFile(h.cfg.EnvFile)
	assert.NilError(t, err)
	assert.Equal(t, strings.Count(string(data), "GROUP_ID="), 1)
}

func TestPrepareRuntimeDirectoryIdempotent(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	assert.NilError(t, p.prepareRuntimeDirectory())
	assert.NilError(t, p.prepareRuntimeDirectory())

	info, err := os.Stat(filepath.Join(h.cfg.RuntimeDir, "clientservice.py"))
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0755))
}

func TestPrepareRuntimeDirectoryMissingProgram(t *testing.T) {
	p, h := testProvisioner(t, &groupid.Static{Value: 3})
	h.cfg.Program = filepath.Join(h.cfg.BaseDir, "missing.py")
	assert.Check(t, p.prepareRuntimeDirectory() != nil)
}
