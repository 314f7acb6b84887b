// Package exitcode defines the process exit codes of cargo-licenses.
package exitcode

// Exit codes. Values are stable so scripts can branch on them.
const (
	Success = 0
	// GeneralError covers failures without a more specific code.
	GeneralError = 1
	// ConfigError is a bad flag, config file, policy file or rule set.
	ConfigError = 2
	// PolicyViolation is returned by check when a dependency fails the
	// license policy, a rule denies it or, with --strict, it is unresolved.
	PolicyViolation = 3
	// FileSystemError is a missing manifest or an unwritable report.
	FileSystemError = 4
	// NetworkError is returned by check --strict when the registry could
	// not be reached for any dependency.
	NetworkError = 5
	// TimeoutError is NetworkError where every lookup timed out.
	TimeoutError      = 7
	UnsupportedFormat = 8
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case PolicyViolation:
		return "Policy violation"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case TimeoutError:
		return "Timeout error"
	case UnsupportedFormat:
		return "Unsupported format"
	default:
		return "Unknown error"
	}
}
