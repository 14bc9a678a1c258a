// internal/pump/decode.go
// Payload interpreters for the read commands. Each works on the
// trailing-zero-stripped payload view, except the basal profile
// decoder which sees the raw stitched big-command payload.
package pump

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"minimed/internal/byteops"
)

func decodeTime(payload []byte) (time.Time, error) {
	if len(payload) < 7 {
		return time.Time{}, fmt.Errorf("time payload too short: %d bytes", len(payload))
	}
	h, m, s := int(payload[0]), int(payload[1]), int(payload[2])
	year := byteops.Unpack(payload[3:5], byteops.BigEndian)
	month, day := int(payload[5]), int(payload[6])
	return time.Date(year, time.Month(month), day, h, m, s, 0, time.Local), nil
}

func decodeModel(payload []byte) (int, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("model payload too short: %d bytes", len(payload))
	}
	model, err := strconv.Atoi(byteops.Charify(payload[1:4]))
	if err != nil {
		return 0, fmt.Errorf("model payload is not numeric: %w", err)
	}
	return model, nil
}

func decodeFirmware(payload []byte) (string, error) {
	if len(payload) < 11 {
		return "", fmt.Errorf("firmware payload too short: %d bytes", len(payload))
	}
	return byteops.Charify(payload[0:8]) + " " + byteops.Charify(payload[8:11]), nil
}

func decodeBattery(payload []byte) (float64, error) {
	if len(payload) < 3 {
		return 0, fmt.Errorf("battery payload too short: %d bytes", len(payload))
	}
	volts := float64(byteops.Unpack(payload[1:3], byteops.BigEndian)) / 100
	return math.Round(volts*100) / 100, nil
}

func decodeReservoir(payload []byte) (float64, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("reservoir payload too short: %d bytes", len(payload))
	}
	units := float64(byteops.Unpack(payload[0:2], byteops.BigEndian)) * BolusStroke
	return math.Round(units*10) / 10, nil
}

func decodeStatus(payload []byte) (Status, error) {
	if len(payload) < 3 {
		return Status{}, fmt.Errorf("status payload too short: %d bytes", len(payload))
	}
	return Status{
		Normal:    payload[0] == 3,
		Bolusing:  payload[1] == 1,
		Suspended: payload[2] == 1,
	}, nil
}

func decodeSettings(payload []byte) (Settings, error) {
	if len(payload) < 18 {
		return Settings{}, fmt.Errorf("settings payload too short: %d bytes", len(payload))
	}
	return Settings{
		DIA:      int(payload[17]),
		MaxBolus: float64(payload[5]) * BolusStroke,
		MaxBasal: float64(byteops.Unpack(payload[6:8], byteops.BigEndian)) * BasalStroke,
	}, nil
}

func decodeBGUnits(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("empty BG units payload")
	}
	if payload[0] == 1 {
		return "mg/dL", nil
	}
	return "mmol/L", nil
}

func decodeCarbUnits(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("empty carb units payload")
	}
	if payload[0] == 1 {
		return "g", nil
	}
	return "exchange", nil
}

func decodeBGTargets(payload []byte) (BGTargets, error) {
	if len(payload) < 1 {
		return BGTargets{}, fmt.Errorf("empty BG targets payload")
	}

	out := BGTargets{Units: "mg/dL"}
	div := 1.0
	if payload[0] == 2 {
		out.Units = "mmol/L"
		div = 10.0
	}

	const size = 3
	n := (len(payload) - 1) / size
	for i := 0; i < n; i++ {
		e := payload[1+i*size:]
		out.Targets = append(out.Targets, BGTarget{
			Time: blockTime(int(e[0])),
			Low:  float64(e[1]) / div,
			High: float64(e[2]) / div,
		})
	}
	return out, nil
}

// decodeFactors handles the shared ISF/CSF layout: two bytes per
// entry, the time block in the low six bits of the first.
func decodeFactors(payload []byte, intUnits, fracUnits string) (Factors, error) {
	if len(payload) < 1 {
		return Factors{}, fmt.Errorf("empty factors payload")
	}

	out := Factors{Units: intUnits}
	div := 1.0
	if payload[0] == 2 {
		out.Units = fracUnits
		div = 10.0
	}

	const size = 2
	n := (len(payload) - 1) / size
	for i := 0; i < n; i++ {
		e := payload[1+i*size:]
		value := byteops.Unpack([]byte{e[0] >> 6, e[1]}, byteops.BigEndian)
		out.Factors = append(out.Factors, Factor{
			Time:  blockTime(int(e[0] % 64)),
			Value: float64(value) / div,
		})
	}
	return out, nil
}

// decodeBasalProfile walks 3-byte groups of the stitched payload; a
// group of three zero bytes, or an incomplete one, ends the schedule.
func decodeBasalProfile(payload []byte) []BasalRate {
	var out []BasalRate
	for i := 0; i+3 <= len(payload); i += 3 {
		e := payload[i : i+3]
		if e[0] == 0 && e[1] == 0 && e[2] == 0 {
			break
		}
		rate := byteops.Unpack(e[0:2], byteops.LittleEndian)
		out = append(out, BasalRate{
			Time: blockTime(int(e[2])),
			Rate: float64(rate) / BolusRate,
		})
	}
	return out
}

// blockTime formats the k-th half-hour block of the day as HH:MM.
func blockTime(k int) string {
	m := k * BasalTimeBlock
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
