// internal/packet/packet.go
package packet

import (
	"fmt"

	"minimed/internal/byteops"
)

// Sentinel opens every pump packet (RF type byte for pump comms).
const Sentinel = 0xA7

// RSSI conversion per the CC1111 datasheet, offset for the 868/916 MHz
// bands.
const rssiOffset = 73

// minDecodedLen is sentinel + serial + opcode + CRC.
const minDecodedLen = 6

// ToPump is a logical request packet addressed to the pump.
type ToPump struct {
	Serial [3]byte
	Code   byte
	Params []byte
}

// NewToPump builds a request packet for the pump with the given serial.
func NewToPump(serial [3]byte, code byte, params []byte) *ToPump {
	return &ToPump{Serial: serial, Code: code, Params: params}
}

// Assemble lays out the logical packet and appends its CRC-8.
func (p *ToPump) Assemble() []byte {
	out := make([]byte, 0, 6+len(p.Params))
	out = append(out, Sentinel)
	out = append(out, p.Serial[:]...)
	out = append(out, p.Code)
	out = append(out, p.Params...)
	return append(out, byteops.CRC8(out))
}

// Encode returns the on-air form of the packet.
func (p *ToPump) Encode() ([]byte, error) {
	return Encode(p.Assemble())
}

func (p *ToPump) String() string {
	return byteops.Hexify(p.Assemble())
}

// FromPump is a parsed response packet. The stick prefixes two
// metadata bytes (sequence, raw RSSI) to the encoded payload; the
// transport hands both through.
type FromPump struct {
	Seq   byte
	RSSI  int    // dBm
	Bytes []byte // decoded logical packet, CRC included
	Code  byte
	Data  []byte // raw span between opcode and CRC
	CRC   byte
}

// ParseFromPump decodes and validates a radio response. raw must still
// carry the two stick metadata bytes in front of the line-coded
// packet.
func ParseFromPump(raw []byte) (*FromPump, error) {
	if len(raw) < 2 {
		return nil, &InvalidPacketError{Kind: NotEnoughBytes, Expected: 2, Got: len(raw)}
	}

	decoded, err := Decode(raw[2:])
	if err != nil {
		return nil, err
	}
	if len(decoded) < minDecodedLen {
		return nil, &InvalidPacketError{Kind: NotEnoughBytes, Expected: minDecodedLen, Got: len(decoded)}
	}

	crc := decoded[len(decoded)-1]
	if want := byteops.CRC8(decoded[:len(decoded)-1]); want != crc {
		return nil, &InvalidPacketError{Kind: BadCRC, Expected: int(want), Got: int(crc)}
	}

	return &FromPump{
		Seq:   raw[0],
		RSSI:  rssiToDBm(raw[1]),
		Bytes: decoded,
		Code:  decoded[4],
		Data:  decoded[5 : len(decoded)-1],
		CRC:   crc,
	}, nil
}

// Payload returns the packet data with trailing zeros stripped, the
// view the short fixed-payload decoders work on. ACK checking and
// big-payload assembly use Data directly, where zero bytes are
// significant.
func (p *FromPump) Payload() []byte {
	end := len(p.Data)
	for end > 0 && p.Data[end-1] == 0 {
		end--
	}
	return p.Data[:end]
}

func (p *FromPump) String() string {
	return fmt.Sprintf("code=0x%02X rssi=%ddBm %s", p.Code, p.RSSI, byteops.Hexify(p.Bytes))
}

func rssiToDBm(raw byte) int {
	return int(int8(raw))/2 - rssiOffset
}
