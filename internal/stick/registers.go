// internal/stick/registers.go
// CC1111 radio configuration registers exposed by the stick firmware.
// The wire address of a register is its index in this list.
package stick

import (
	"fmt"
	"math"

	"minimed/internal/byteops"
)

var registers = [...]string{
	"SYNC1", "SYNC0",
	"PKTLEN", "PKTCTRL1", "PKTCTRL0",
	"ADDR",
	"FSCTRL1", "FSCTRL0",
	"MDMCFG4", "MDMCFG3", "MDMCFG2", "MDMCFG1", "MDMCFG0",
	"DEVIATN",
	"MCSM2", "MCSM1", "MCSM0",
	"FOCCFG",
	"BSCFG",
	"AGCCTRL2", "AGCCTRL1", "AGCCTRL0",
	"FREND1", "FREND0",
	"FSCAL3", "FSCAL2", "FSCAL1", "FSCAL0",
	"TEST1", "TEST0",
	"PA_TABLE1", "PA_TABLE0",
	"FREQ2", "FREQ1", "FREQ0",
	"CHANNR",
}

// RegisterIndex resolves a register name to its wire address.
func RegisterIndex(name string) (byte, error) {
	for i, r := range registers {
		if r == name {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown radio register %q", byteops.ErrBadArgument, name)
}

// Registers returns the ordered register names.
func Registers() []string {
	return registers[:]
}

// CrystalMHz is the stick's reference crystal.
const CrystalMHz = 24.0

// FrequencyWord converts a frequency in MHz to the 24-bit value split
// across FREQ2/FREQ1/FREQ0.
func FrequencyWord(mhz float64) int {
	return int(math.Round(mhz * (1 << 16) / CrystalMHz))
}

// Band is a regional frequency band the pump may use.
type Band struct {
	Name    string
	Default float64 // MHz
	Min     float64
	Max     float64
}

var (
	BandNA = Band{Name: "NA", Default: 916.660, Min: 916.645, Max: 916.775}
	BandWW = Band{Name: "WW", Default: 868.330, Min: 868.150, Max: 868.750}
)

// Bands lists the known regional bands.
func Bands() []Band {
	return []Band{BandNA, BandWW}
}

// BandByName returns the band with the given name.
func BandByName(name string) (Band, error) {
	for _, b := range Bands() {
		if b.Name == name {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("%w: unknown band %q", byteops.ErrBadArgument, name)
}

// Contains reports whether f lies inside the band.
func (b Band) Contains(f float64) bool {
	return f >= b.Min && f <= b.Max
}
