// internal/pump/errors.go
package pump

import (
	"errors"
	"fmt"

	"minimed/internal/byteops"
)

// ErrNoPump means every prelude attempt went unanswered.
var ErrNoPump = errors.New("no pump detected, is it within reach?")

// UnsuccessfulCommandError means a set-command response was not the
// expected ACK packet.
type UnsuccessfulCommandError struct {
	Code    byte
	Payload []byte
}

func (e *UnsuccessfulCommandError) Error() string {
	return fmt.Sprintf("unsuccessful radio command: got code 0x%02X payload [%s]",
		e.Code, byteops.Hexify(e.Payload))
}
