package core

// Exit codes for the batchgen binary. Signal-based exits follow the Unix
// convention of 128 + signal number.
const (
	// ExitCodeSuccess means every prompt in the run succeeded.
	ExitCodeSuccess = 0

	// ExitCodeError means the run could not start (configuration, ledger).
	ExitCodeError = 1

	// ExitCodePartialFailure means the run finished but some prompts failed.
	ExitCodePartialFailure = 2

	// ExitCodeSIGINT is 128 + 2.
	ExitCodeSIGINT = 130
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodePartialFailure:
		return "partial failure"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	default:
		return "unknown"
	}
}
