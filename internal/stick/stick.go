// internal/stick/stick.go
// USB transport for the CC1111 radio stick. The stick firmware speaks
// a small binary protocol over two bulk endpoints: each request is an
// opcode byte followed by its arguments, each response is buffered
// until a zero terminator byte.
package stick

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"

	"minimed/internal/byteops"
)

const (
	// USB identity of the stick.
	VendorID  = 0x0451
	ProductID = 0x16A7

	// Stick firmware opcodes.
	opReadName   = 0
	opReadAuthor = 1
	opRegRead    = 10
	opRegWrite   = 11
	opRadioRX    = 20
	opRadioTX    = 21
	opRadioTXRX  = 22
	opFlashLED   = 30

	// Radio error sentinels returned as a single-byte payload.
	errRadioTimeout = 0xAA
	errRadioNoData  = 0xBB

	// readChunkSize is the bulk IN transfer granularity.
	readChunkSize = 64

	// usbTimeoutPad absorbs endpoint scheduling jitter on top of the
	// radio-side timeout.
	usbTimeoutPad = 500 * time.Millisecond

	// defaultTimeout bounds non-radio reads.
	defaultTimeout = time.Second
)

// outEndpoint and inEndpoint are the slices of gousb endpoints the
// transport uses; tests substitute in-memory fakes.
type outEndpoint interface {
	Write(b []byte) (int, error)
}

type inEndpoint interface {
	ReadContext(ctx context.Context, b []byte) (int, error)
}

// Stick owns the USB device handle and the two bulk endpoints for the
// lifetime of the process.
type Stick struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  outEndpoint
	in   inEndpoint
}

// Open finds the stick on the USB bus, claims its first interface and
// caches the bulk endpoints.
func Open() (*Stick, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrNoStick
	}

	if err := dev.SetAutoDetach(true); err != nil {
		log.Printf("could not enable kernel driver auto-detach: %v", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("set USB config: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claim USB interface: %w", err)
	}

	s := &Stick{ctx: ctx, dev: dev, cfg: cfg, intf: intf}

	// Find the bulk endpoints by direction.
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			out, err := intf.OutEndpoint(ep.Number)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open OUT endpoint: %w", err)
			}
			s.out = out
		case gousb.EndpointDirectionIn:
			in, err := intf.InEndpoint(ep.Number)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open IN endpoint: %w", err)
			}
			s.in = in
		}
	}
	if s.out == nil || s.in == nil {
		s.Close()
		return nil, fmt.Errorf("stick interface is missing a bulk endpoint pair")
	}

	log.Printf("opened CC1111 stick (VID:0x%04X PID:0x%04X)", VendorID, ProductID)
	return s, nil
}

// Close releases the interface, configuration, device and context.
func (s *Stick) Close() error {
	if s.intf != nil {
		s.intf.Close()
	}
	if s.cfg != nil {
		s.cfg.Close()
	}
	if s.dev != nil {
		s.dev.Close()
	}
	if s.ctx != nil {
		s.ctx.Close()
	}
	return nil
}

// write sends one request frame on the OUT endpoint.
func (s *Stick) write(frame []byte) error {
	if _, err := s.out.Write(frame); err != nil {
		return fmt.Errorf("USB write: %w", err)
	}
	return nil
}

// read buffers the IN endpoint in 64-byte chunks until the stick sends
// its zero terminator, which is stripped.
func (s *Stick) read(timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var buf []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.in.ReadContext(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("USB read: %w", err)
		}
		buf = append(buf, chunk[:n]...)
		if len(buf) > 0 && buf[len(buf)-1] == 0 {
			return buf[:len(buf)-1], nil
		}
	}
}

// readRadio reads a radio response and maps the firmware's one-byte
// error sentinels to RadioError.
func (s *Stick) readRadio(timeout time.Duration, tolerate bool) ([]byte, error) {
	buf, err := s.read(timeout)
	if err != nil {
		return nil, err
	}
	if len(buf) == 1 {
		var kind RadioErrorKind
		switch buf[0] {
		case errRadioTimeout:
			kind = RadioTimeout
		case errRadioNoData:
			kind = RadioNoData
		default:
			return buf, nil
		}
		if tolerate {
			return nil, nil
		}
		return nil, &RadioError{Kind: kind}
	}
	return buf, nil
}

// ReadName returns the name string baked into the stick firmware.
func (s *Stick) ReadName() (string, error) {
	if err := s.write([]byte{opReadName}); err != nil {
		return "", err
	}
	buf, err := s.read(defaultTimeout)
	if err != nil {
		return "", err
	}
	return byteops.Charify(buf), nil
}

// ReadAuthor returns the author string baked into the stick firmware.
func (s *Stick) ReadAuthor() (string, error) {
	if err := s.write([]byte{opReadAuthor}); err != nil {
		return "", err
	}
	buf, err := s.read(defaultTimeout)
	if err != nil {
		return "", err
	}
	return byteops.Charify(buf), nil
}

// ReadRegister reads one radio register by name.
func (s *Stick) ReadRegister(name string) (byte, error) {
	addr, err := RegisterIndex(name)
	if err != nil {
		return 0, err
	}
	if err := s.write([]byte{opRegRead, addr}); err != nil {
		return 0, err
	}
	buf, err := s.read(defaultTimeout)
	if err != nil {
		return 0, err
	}
	if len(buf) < 1 {
		return 0, fmt.Errorf("empty register read response for %s", name)
	}
	return buf[0], nil
}

// WriteRegister writes one radio register by name. The write is
// fire-and-forget on the USB side; Tune reads back to verify.
func (s *Stick) WriteRegister(name string, value byte) error {
	addr, err := RegisterIndex(name)
	if err != nil {
		return err
	}
	return s.write([]byte{opRegWrite, addr, value})
}

// RadioRX listens on a channel for one packet within the given radio
// timeout. With tolerate set, radio errors are swallowed and an empty
// payload returned.
func (s *Stick) RadioRX(channel byte, timeout time.Duration, tolerate bool) ([]byte, error) {
	radioTimeout, err := byteops.Pack(int(timeout.Milliseconds()), 4, byteops.BigEndian)
	if err != nil {
		return nil, err
	}

	frame := append([]byte{opRadioRX, channel}, radioTimeout...)
	if err := s.write(frame); err != nil {
		return nil, err
	}
	return s.readRadio(timeout+usbTimeoutPad, tolerate)
}

// RadioTX transmits data on a channel, optionally repeating with the
// given delay between sends.
func (s *Stick) RadioTX(data []byte, channel byte, delay time.Duration) error {
	repeatDelay, err := byteops.Pack(int(delay.Milliseconds()), 4, byteops.BigEndian)
	if err != nil {
		return err
	}

	frame := append([]byte{opRadioTX, channel}, repeatDelay...)
	frame = append(frame, data...)
	frame = append(frame, 0)
	return s.write(frame)
}

// TXRXParams parameterizes a combined transmit/receive exchange.
type TXRXParams struct {
	ChannelTX byte
	ChannelRX byte
	Repeat    byte          // transmit repeats, firmware side
	Delay     time.Duration // delay between transmit repeats
	Retry     byte          // receive retries, firmware side
	Timeout   time.Duration // radio-side receive timeout
	Tolerate  bool          // swallow RadioError, return empty payload
}

// RadioTXRX transmits data and waits for the pump's response, with
// firmware-level retries.
func (s *Stick) RadioTXRX(data []byte, p TXRXParams) ([]byte, error) {
	repeatDelay, err := byteops.Pack(int(p.Delay.Milliseconds()), 4, byteops.BigEndian)
	if err != nil {
		return nil, err
	}
	radioTimeout, err := byteops.Pack(int(p.Timeout.Milliseconds()), 4, byteops.BigEndian)
	if err != nil {
		return nil, err
	}

	frame := append([]byte{opRadioTXRX, p.ChannelTX, p.Repeat}, repeatDelay...)
	frame = append(frame, p.ChannelRX)
	frame = append(frame, radioTimeout...)
	frame = append(frame, p.Retry)
	frame = append(frame, data...)
	frame = append(frame, 0)
	if err := s.write(frame); err != nil {
		return nil, err
	}

	// Each firmware retry may consume a full radio timeout.
	usbTimeout := time.Duration(p.Retry+1)*p.Timeout + usbTimeoutPad
	return s.readRadio(usbTimeout, p.Tolerate)
}

// FlashLED blinks the stick's LED.
func (s *Stick) FlashLED() error {
	return s.write([]byte{opFlashLED})
}

// Tune programs the frequency synthesizer and verifies every register
// by reading it back.
func (s *Stick) Tune(mhz float64) error {
	word, err := byteops.Pack(FrequencyWord(mhz), 3, byteops.BigEndian)
	if err != nil {
		return err
	}

	for i, reg := range []string{"FREQ2", "FREQ1", "FREQ0"} {
		if err := s.WriteRegister(reg, word[i]); err != nil {
			return err
		}
		got, err := s.ReadRegister(reg)
		if err != nil {
			return err
		}
		if got != word[i] {
			return &RegisterMismatchError{Register: reg, Wrote: word[i], Read: got}
		}
	}

	log.Printf("radio tuned to %.3f MHz", mhz)
	return nil
}
