package config

import (
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is the immutable view of the install's environment file. It is
// constructed once at startup and handed by reference to every component;
// nothing reads the process environment after load.
type Config struct {
	// RuntimeDir is the directory the installed service runs from.
	RuntimeDir string
	// WebServer is the report target for the simpler launcher variant.
	WebServer string
	// EnvFile is the runtime environment file, where GROUP_ID is persisted.
	EnvFile string
	// Launcher is the launcher executable path inside the runtime dir.
	Launcher string
	// TasksFile is the local task-list file consumed by the launcher.
	TasksFile string
	// CronLog is the shared log target appended to by both periodic actions.
	CronLog string
	// TasksEndPoint serves the task list over HTTPS.
	TasksEndPoint string
	// UpdateEndPoint is handed to the launcher verbatim.
	UpdateEndPoint string
	// Program is the source artifact staged into the runtime dir.
	Program string
	// BaseDir is the install source directory, removed under RemoveSelf.
	BaseDir string
	// RemoveSelf removes BaseDir after a successful non-test install.
	RemoveSelf bool
	// Test switches to non-interactive defaults and verbose diagnostics.
	Test bool
}

// requiredKeys is the fixed key set the environment file must define with
// non-empty values. Ordered so validation failures report deterministically.
var requiredKeys = []string{
	"RUNTIME_DIR",
	"WEB_SERVER",
	"ENV_FILE",
	"LAUNCHER",
	"TASKS_FILE",
	"CRON_LOG",
	"TASKS_END_POINT",
	"UPDATE_END_POINT",
	"PROGRAM",
	"BASE_DIR",
	"REMOVE_SELF",
	"TEST",
}

// Load parses the KEY=value environment file at path and validates the
// required key set. It performs no filesystem mutation and must run before
// any component that does.
func Load(path string) (*Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read environment file %q", path)
	}
	return FromMap(vars)
}

// FromMap validates and types an already-parsed key/value mapping.
func FromMap(vars map[string]string) (*Config, error) {
	for _, key := range requiredKeys {
		if vars[key] == "" {
			return nil, &MissingKeyError{Key: key}
		}
	}

	removeSelf, err := parseBool("REMOVE_SELF", vars["REMOVE_SELF"])
	if err != nil {
		return nil, err
	}
	test, err := parseBool("TEST", vars["TEST"])
	if err != nil {
		return nil, err
	}

	return &Config{
		RuntimeDir:     vars["RUNTIME_DIR"],
		WebServer:      vars["WEB_SERVER"],
		EnvFile:        vars["ENV_FILE"],
		Launcher:       vars["LAUNCHER"],
		TasksFile:      vars["TASKS_FILE"],
		CronLog:        vars["CRON_LOG"],
		TasksEndPoint:  vars["TASKS_END_POINT"],
		UpdateEndPoint: vars["UPDATE_END_POINT"],
		Program:        vars["PROGRAM"],
		BaseDir:        vars["BASE_DIR"],
		RemoveSelf:     removeSelf,
		Test:           test,
	}, nil
}

// parseBool accepts exactly "True" or "False". The shell original treated
// anything that wasn't exactly "True" as false; here an unrecognized value
// is a configuration error instead.
func parseBool(key, value string) (bool, error) {
	switch value {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return false, &BadValueError{Key: key, Value: value, Want: `"True" or "False"`}
}
