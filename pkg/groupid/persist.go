package groupid

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const envKey = "GROUP_ID"

// Append records the group id by appending a GROUP_ID line to the runtime
// environment file. This mirrors the reference installer: re-provisioning
// accumulates duplicate lines, and readers take the last one. Rewrite is
// the idempotent alternative.
func Append(envFile string, value int) error {
	f, err := os.OpenFile(envFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "unable to open %q", envFile)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%d\n", envKey, value); err != nil {
		return errors.Wrapf(err, "unable to append %s to %q", envKey, envFile)
	}
	return nil
}

// Rewrite records the group id keeping exactly one GROUP_ID line in the
// file, preserving every other line in order. The file is replaced
// atomically.
func Rewrite(envFile string, value int) error {
	var kept []string
	data, err := os.ReadFile(envFile)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to read %q", envFile)
	}
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line == "" || strings.HasPrefix(line, envKey+"=") {
				continue
			}
			kept = append(kept, line)
		}
	}
	kept = append(kept, fmt.Sprintf("%s=%d", envKey, value))

	tmp := envFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(kept, "\n")+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "unable to stage %q", tmp)
	}
	if err := os.Rename(tmp, envFile); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "unable to replace %q", envFile)
	}
	return nil
}

// Read returns the persisted group id. With duplicate GROUP_ID lines (the
// append behavior) the last one wins, matching how the shell sourced the
// file.
func Read(envFile string) (int, error) {
	data, err := os.ReadFile(envFile)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to read %q", envFile)
	}
	value, found := 0, false
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, envKey+"=") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, envKey+"=")))
		if err != nil {
			continue
		}
		value, found = v, true
	}
	if !found {
		return 0, errors.Errorf("no %s entry in %q", envKey, envFile)
	}
	return value, nil
}
