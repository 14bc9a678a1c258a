// internal/stick/errors.go
package stick

import (
	"errors"
	"fmt"
)

// ErrNoStick means the CC1111 was not found on the USB bus.
var ErrNoStick = errors.New("no stick detected, is it plugged in?")

// ErrBadFrequencies means a scan range straddles or falls outside all
// regional bands.
var ErrBadFrequencies = errors.New("bad frequencies to scan for given")

// RadioErrorKind discriminates the one-byte error sentinels the stick
// firmware returns on radio opcodes.
type RadioErrorKind int

const (
	RadioTimeout RadioErrorKind = iota
	RadioNoData
)

func (k RadioErrorKind) String() string {
	if k == RadioTimeout {
		return "timeout"
	}
	return "no data"
}

// RadioError is a firmware-level radio failure (timeout or no data).
type RadioError struct {
	Kind RadioErrorKind
}

func (e *RadioError) Error() string {
	return "radio error: " + e.Kind.String()
}

// IsRadioError reports whether err is a RadioError of any kind.
func IsRadioError(err error) bool {
	var re *RadioError
	return errors.As(err, &re)
}

// RegisterMismatchError means a tune readback disagreed with the value
// just written.
type RegisterMismatchError struct {
	Register    string
	Wrote, Read byte
}

func (e *RegisterMismatchError) Error() string {
	return fmt.Sprintf("register %s readback mismatch: wrote 0x%02X, read 0x%02X",
		e.Register, e.Wrote, e.Read)
}
