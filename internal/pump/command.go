// internal/pump/command.go
package pump

import (
	"minimed/internal/packet"
	"minimed/internal/stick"
)

// Command is the reusable state of one pump operation: an opcode, a
// parameter buffer, and the packets of the last run. A run clears the
// mutable state, encodes parameters, moves bytes and hands the
// response to a decoder.
type Command struct {
	pump         *Pump
	code         byte
	params       []byte
	preludeReps  int
	postludeReps int
	tx           []*packet.ToPump
	rx           []*packet.FromPump
}

func (p *Pump) newCommand(code byte) *Command {
	return &Command{pump: p, code: code, preludeReps: 1}
}

// reset clears the response state and restores the default parameter
// buffer (the single 0x00 every plain read sends).
func (c *Command) reset() {
	c.params = []byte{0x00}
	c.tx = c.tx[:0]
	c.rx = c.rx[:0]
}

// execute performs one radio round-trip with the current parameters
// and stores both packets.
func (c *Command) execute() (*packet.FromPump, error) {
	req := packet.NewToPump(c.pump.serial, c.code, c.params)
	enc, err := req.Encode()
	if err != nil {
		return nil, err
	}
	c.tx = append(c.tx, req)

	raw, err := c.pump.transport.RadioTXRX(enc, c.pump.txrxParams())
	if err != nil {
		return nil, err
	}
	resp, err := packet.ParseFromPump(raw)
	if err != nil {
		return nil, err
	}
	c.rx = append(c.rx, resp)
	return resp, nil
}

// run performs a plain single-packet exchange. A nil params keeps the
// default buffer.
func (c *Command) run(params []byte) (*packet.FromPump, error) {
	c.reset()
	if params != nil {
		c.params = params
	}
	return c.execute()
}

// prelude wakes the pump up. The wake-up request carries the default
// parameter buffer; for retrying commands every radio or packet
// failure is swallowed until one attempt succeeds.
func (c *Command) prelude() error {
	for i := 0; i < c.preludeReps; i++ {
		_, err := c.execute()
		if err == nil {
			return nil
		}
		if c.preludeReps > 1 && (stick.IsRadioError(err) || packet.IsInvalid(err)) {
			continue
		}
		return err
	}
	return ErrNoPump
}

// runBig stitches prelude × N, core, postlude × M into one logical
// operation and returns the assembled payload: the core packet's data
// followed by each continuation packet's, in arrival order. The
// prelude response is excluded.
func (c *Command) runBig(params []byte) ([]byte, error) {
	c.reset()
	if err := c.prelude(); err != nil {
		return nil, err
	}

	if params != nil {
		c.params = params
	}
	if _, err := c.execute(); err != nil {
		return nil, err
	}

	more := c.pump.newCommand(opReadMore)
	for i := 0; i < c.postludeReps; i++ {
		resp, err := more.run(nil)
		if err != nil {
			return nil, err
		}
		c.rx = append(c.rx, resp)
	}

	var payload []byte
	for _, resp := range c.rx[1:] {
		payload = append(payload, resp.Data...)
	}
	return payload, nil
}

// runSet runs a big command whose core response must be the pump's
// ACK.
func (c *Command) runSet(params []byte) error {
	c.reset()
	if err := c.prelude(); err != nil {
		return err
	}

	if params != nil {
		c.params = params
	}
	resp, err := c.execute()
	if err != nil {
		return err
	}
	return checkAck(resp)
}

// checkAck validates the ACK contract: opcode 0x06 with the single
// payload byte 0x00.
func checkAck(resp *packet.FromPump) error {
	if resp.Code != opReadMore || len(resp.Data) != 1 || resp.Data[0] != 0x00 {
		return &UnsuccessfulCommandError{Code: resp.Code, Payload: resp.Data}
	}
	return nil
}
