package common

import (
	"os"
)

const (
	ExitCodeSuccess     = 0
	ExitCodeFailure     = 1
	ExitCodeConfigError = 2
	ExitCodeExecError   = 3
)

var osExit = os.Exit

// ExitCode maps a run result onto the process exit code.
func ExitCode(allPassed bool) int {
	if allPassed {
		return ExitCodeSuccess
	}
	return ExitCodeFailure
}

// Exit terminates the process through the helper matching code. Unknown
// codes are passed to the operating system unchanged.
func Exit(code int) {
	switch code {
	case ExitCodeSuccess:
		ExitSuccess()
	case ExitCodeFailure:
		ExitFailure()
	case ExitCodeConfigError:
		ExitConfigError()
	case ExitCodeExecError:
		ExitExecError()
	default:
		osExit(code)
	}
}

// ExitSuccess exits with code 0 (success)
func ExitSuccess() {
	osExit(ExitCodeSuccess)
}

// ExitFailure exits with code 1 (at least one target failed)
func ExitFailure() {
	osExit(ExitCodeFailure)
}

// ExitConfigError exits with code 2 (config error)
func ExitConfigError() {
	osExit(ExitCodeConfigError)
}

// ExitExecError exits with code 3 (the run itself could not be carried out)
func ExitExecError() {
	osExit(ExitCodeExecError)
}
