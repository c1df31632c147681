package errors

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
)

// ErrorGeneric is the exit code for any bootstrap failure: missing manifests,
// apply failures, retry exhaustion, or validation failure.
const ErrorGeneric = 1

// CheckError logs a fatal message and exits with ErrorGeneric if err is not nil
func CheckError(err error, log logr.Logger) {
	if err != nil {
		Fatal(log, ErrorGeneric, err)
	}
}

// CheckErrorWithCode is a convenience function to exit if an error is non-nil and exit if it was
func CheckErrorWithCode(err error, exitcode int, log logr.Logger) {
	if err != nil {
		Fatal(log, exitcode, err)
	}
}

// Fatal is a helper to exit with custom code.
func Fatal(log logr.Logger, exitcode int, keysAndValues ...interface{}) {
	log.Error(fmt.Errorf("exit code %d", exitcode), "Fatal error", keysAndValues...)
	os.Exit(exitcode)
}
