package config

import "fmt"

// MissingKeyError reports a required key that is absent or empty in the
// environment file.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("configuration: required key %s is missing or empty", e.Key)
}

// BadValueError reports a key whose value failed typed parsing.
type BadValueError struct {
	Key   string
	Value string
	Want  string
}

func (e *BadValueError) Error() string {
	return fmt.Sprintf("configuration: key %s has unrecognized value %q, want %s", e.Key, e.Value, e.Want)
}
