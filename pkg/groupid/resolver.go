// Package groupid resolves and persists the integer group identity that
// partitions hosts into operational cohorts.
package groupid

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// numericPattern is what the reference installer accepted for a group id.
var numericPattern = regexp.MustCompile(`^[0-9]+$`)

// TestDefault is the group id used when test mode suppresses prompting.
const TestDefault = 3

// Resolver yields the group identity for this host. Implementations either
// ask the operator or return an injected value; the caller picks which by
// configuration, never by branching on a mode string.
type Resolver interface {
	Resolve() (int, error)
}

// Static returns a fixed group id without any interaction. It backs test
// mode and automated installs.
type Static struct {
	Value int
}

func (s *Static) Resolve() (int, error) {
	if s.Value < 0 {
		return 0, errors.Errorf("group id must be non-negative, got %d", s.Value)
	}
	return s.Value, nil
}

// Interactive prompts on Out and reads answers from In until a numeric
// value is entered and confirmed. Non-numeric input re-prompts the number;
// a confirmation answer other than y/n re-asks only the confirmation; "n"
// restarts the numeric prompt. Input exhaustion is an error so automated
// runs fail loudly instead of spinning.
type Interactive struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func (r *Interactive) Resolve() (int, error) {
	r.scanner = bufio.NewScanner(r.In)
	for {
		fmt.Fprint(r.Out, "Enter the group id for this host: ")
		line, err := r.readLine()
		if err != nil {
			return 0, err
		}
		if !numericPattern.MatchString(line) {
			fmt.Fprintf(r.Out, "%q is not a number\n", line)
			continue
		}
		value, err := strconv.Atoi(line)
		if err != nil {
			// matched the numeric pattern but overflows int
			fmt.Fprintf(r.Out, "%q is out of range\n", line)
			continue
		}

		confirmed, err := r.confirm(value)
		if err != nil {
			return 0, err
		}
		if confirmed {
			return value, nil
		}
	}
}

func (r *Interactive) confirm(value int) (bool, error) {
	for {
		fmt.Fprintf(r.Out, "Use group id %d? [y/n]: ", value)
		answer, err := r.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y":
			return true, nil
		case "n":
			return false, nil
		}
		// anything else re-asks the confirmation, not the number
	}
}

func (r *Interactive) readLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", errors.Wrap(err, "reading prompt answer")
		}
		return "", errors.New("input closed before group id was confirmed")
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}
