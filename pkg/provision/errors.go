package provision

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPrivilege means the installer is not running as root. The schedule
// definition is root-owned and packages install system-wide, so nothing
// else is attempted.
var ErrPrivilege = errors.New("root privilege is required to install the client service")

// PackageError reports a failed dependency installation, including a
// failed package-index refresh.
type PackageError struct {
	Step string
	Err  error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package %s failed: %v", e.Step, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}
