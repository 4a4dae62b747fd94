package task

import (
	"errors"

	"github.com/programlife555/ape-dts/internal/extract"
)

// Sentinel errors for the error kinds spec.md §7 names that have no more
// specific home elsewhere (ConnectionLost/Unrecoverable already live on
// internal/extract; conflicts are reported as sink.Conflict values, not
// errors that unwind the pipeline).
var (
	// ErrProtocolViolation marks a fatal wire-format violation (spec.md §7:
	// "ProtocolViolation (fatal)").
	ErrProtocolViolation = errors.New(`task: protocol violation`)

	// ErrCheckpointStoreFailure marks a checkpoint store I/O failure,
	// retriable at the call site before being reclassified fatal (spec.md
	// §7: "CheckpointStoreFailure (retriable then fatal)").
	ErrCheckpointStoreFailure = errors.New(`task: checkpoint store failure`)
)

// ExitCode maps the first error observed by Run to the process exit code
// spec.md §6 defines: "0 clean EOS; 1 interrupted; 2 config error; 3
// unrecoverable source error."
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case isConfigError(err):
		return 2
	case errors.Is(err, extract.ErrUnrecoverable):
		return 3
	default:
		// Cancelled, ConnectionLost-exhausted, ProtocolViolation,
		// CheckpointStoreFailure (once reclassified fatal), and any other
		// unwind all count as "interrupted" per spec.md §6.
		return 1
	}
}

type configError struct{ error }

// WrapConfigError marks err as a Config-kind error (spec.md §7), so
// ExitCode maps it to exit code 2 regardless of where it originated
// (config.Load, config.Config.ParseAll, or a component rejecting its own
// configuration at startup).
func WrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return configError{err}
}

func isConfigError(err error) bool {
	var c configError
	return errors.As(err, &c)
}
