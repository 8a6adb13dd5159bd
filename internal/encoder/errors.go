package encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrames is returned when the frame directory holds nothing to
	// encode.
	ErrNoFrames = errors.New("no frames to encode")

	// ErrTimeout is returned when the transcoder exceeds the per-format
	// ceiling and had to be killed.
	ErrTimeout = errors.New("encoder timed out")

	// ErrOutputMissing is returned when the transcoder exited cleanly but
	// produced no output file.
	ErrOutputMissing = errors.New("encoder produced no output file")
)

// CrashClass distinguishes the two abort signatures worth separate user
// guidance.
type CrashClass string

const (
	// CrashSignature covers signature/security aborts (SIGABRT, SIGTRAP,
	// SIGSEGV, SIGILL): typically a blocked or broken ffmpeg binary.
	CrashSignature CrashClass = "signature"

	// CrashOutOfMemory covers SIGKILL-style terminations, which on every
	// supported platform means the system reclaimed the process.
	CrashOutOfMemory CrashClass = "out_of_memory"
)

// CrashError reports an encoder process killed by a signal rather than
// exiting.
type CrashError struct {
	Class  CrashClass
	Signal string
}

func (e *CrashError) Error() string {
	switch e.Class {
	case CrashSignature:
		return fmt.Sprintf("encoder aborted (%s): the ffmpeg binary may be blocked or corrupted, try reinstalling it", e.Signal)
	case CrashOutOfMemory:
		return fmt.Sprintf("encoder killed (%s): the system ran low on memory, try a smaller capture area or lower quality", e.Signal)
	default:
		return fmt.Sprintf("encoder crashed (%s)", e.Signal)
	}
}

// ExitCodeError reports a nonzero encoder exit that matched no known crash
// signature.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("encoder exited with code %d", e.Code)
}
