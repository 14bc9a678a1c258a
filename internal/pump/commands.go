// internal/pump/commands.go
// Concrete pump commands, one typed method per operation.
package pump

import (
	"fmt"
	"math"
	"time"

	"minimed/internal/byteops"
)

// Time reads the pump's clock.
func (p *Pump) Time() (time.Time, error) {
	resp, err := p.newCommand(opReadTime).run(nil)
	if err != nil {
		return time.Time{}, err
	}
	return decodeTime(resp.Payload())
}

// Model reads the pump's model number.
func (p *Pump) Model() (int, error) {
	resp, err := p.newCommand(opReadModel).run(nil)
	if err != nil {
		return 0, err
	}
	return decodeModel(resp.Payload())
}

// Firmware reads the pump's firmware version string.
func (p *Pump) Firmware() (string, error) {
	resp, err := p.newCommand(opReadFirmware).run(nil)
	if err != nil {
		return "", err
	}
	return decodeFirmware(resp.Payload())
}

// Battery reads the battery voltage.
func (p *Pump) Battery() (float64, error) {
	resp, err := p.newCommand(opReadBattery).run(nil)
	if err != nil {
		return 0, err
	}
	return decodeBattery(resp.Payload())
}

// Reservoir reads the remaining insulin in units.
func (p *Pump) Reservoir() (float64, error) {
	resp, err := p.newCommand(opReadReservoir).run(nil)
	if err != nil {
		return 0, err
	}
	return decodeReservoir(resp.Payload())
}

// Status reads the pump's run state.
func (p *Pump) Status() (Status, error) {
	resp, err := p.newCommand(opReadStatus).run(nil)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(resp.Payload())
}

// Settings reads the pump's delivery limits.
func (p *Pump) Settings() (Settings, error) {
	resp, err := p.newCommand(opReadSettings).run(nil)
	if err != nil {
		return Settings{}, err
	}
	return decodeSettings(resp.Payload())
}

// BGUnits reads the blood-glucose unit setting.
func (p *Pump) BGUnits() (string, error) {
	resp, err := p.newCommand(opReadBGUnits).run(nil)
	if err != nil {
		return "", err
	}
	return decodeBGUnits(resp.Payload())
}

// CarbUnits reads the carbohydrate unit setting.
func (p *Pump) CarbUnits() (string, error) {
	resp, err := p.newCommand(opReadCarbUnits).run(nil)
	if err != nil {
		return "", err
	}
	return decodeCarbUnits(resp.Payload())
}

// BGTargets reads the blood-glucose target schedule.
func (p *Pump) BGTargets() (BGTargets, error) {
	resp, err := p.newCommand(opReadBGTargets).run(nil)
	if err != nil {
		return BGTargets{}, err
	}
	return decodeBGTargets(resp.Payload())
}

// ISF reads the insulin-sensitivity schedule.
func (p *Pump) ISF() (Factors, error) {
	resp, err := p.newCommand(opReadISF).run(nil)
	if err != nil {
		return Factors{}, err
	}
	return decodeFactors(resp.Payload(), "mg/dL/U", "mmol/L/U")
}

// CSF reads the carb-ratio schedule.
func (p *Pump) CSF() (Factors, error) {
	resp, err := p.newCommand(opReadCSF).run(nil)
	if err != nil {
		return Factors{}, err
	}
	return decodeFactors(resp.Payload(), "g/U", "U/exchange")
}

// DailyTotals reads the raw daily insulin totals record.
func (p *Pump) DailyTotals() ([]byte, error) {
	resp, err := p.newCommand(opReadDailyTotals).run(nil)
	if err != nil {
		return nil, err
	}
	return resp.Payload(), nil
}

// TB reads the raw temporary-basal record.
func (p *Pump) TB() ([]byte, error) {
	resp, err := p.newCommand(opReadTB).run(nil)
	if err != nil {
		return nil, err
	}
	return resp.Payload(), nil
}

// HistorySize reads the raw history-size record.
func (p *Pump) HistorySize() ([]byte, error) {
	resp, err := p.newCommand(opReadHistorySize).run(nil)
	if err != nil {
		return nil, err
	}
	return resp.Payload(), nil
}

// More issues one continuation read and returns its raw payload.
func (p *Pump) More() ([]byte, error) {
	resp, err := p.newCommand(opReadMore).run(nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// BasalProfile reads one of the three basal schedules.
func (p *Pump) BasalProfile(profile BasalProfileType) ([]BasalRate, error) {
	code := byte(opReadBasalStandard)
	switch profile {
	case BasalA:
		code = opReadBasalA
	case BasalB:
		code = opReadBasalB
	}

	cmd := p.newCommand(code)
	cmd.postludeReps = basalPostludeReps
	payload, err := cmd.runBig(nil)
	if err != nil {
		return nil, err
	}
	return decodeBasalProfile(payload), nil
}

// HistoryPage reads one page of the pump's treatment history, stitched
// from the core response and its continuation packets.
func (p *Pump) HistoryPage(page int) ([]byte, error) {
	if err := byteops.CheckIntInRange(page, 0, maxHistoryPage, "history page number"); err != nil {
		return nil, err
	}

	cmd := p.newCommand(opReadHistoryPage)
	cmd.postludeReps = historyPostludeReps
	return cmd.runBig(paramBuffer(0x01, byte(page)))
}

// Power wakes the pump and opens an RF session of the given length in
// minutes. Up to 50 wake-up attempts are made before giving up.
func (p *Pump) Power(minutes int) error {
	if err := byteops.CheckIntInRange(minutes, 0, 30, "RF session length"); err != nil {
		return err
	}

	cmd := p.newCommand(opPower)
	cmd.preludeReps = powerPreludeReps
	return cmd.runSet(paramBuffer(0x02, 0x01, byte(minutes)))
}

// PushButton presses one of the pump's physical buttons.
func (p *Pump) PushButton(b Button) error {
	if err := byteops.CheckIntInRange(int(b), int(ButtonEasy), int(ButtonDown), "button"); err != nil {
		return err
	}
	return p.newCommand(opPushButton).runSet(paramBuffer(0x01, byte(b)))
}

// Suspend halts all delivery. Suspend and Resume share an opcode; only
// the parameter byte differs, matching the pump's own semantics.
func (p *Pump) Suspend() error {
	return p.newCommand(opSuspendResume).runSet(paramBuffer(0x01, 0x01))
}

// Resume restarts delivery after a suspend.
func (p *Pump) Resume() error {
	return p.newCommand(opSuspendResume).runSet(paramBuffer(0x01, 0x00))
}

// Bolus delivers the given number of units.
func (p *Pump) Bolus(units float64) error {
	strokes := int(math.Round(units / BolusStroke))
	if err := byteops.CheckIntInRange(strokes, 0, 250, "bolus"); err != nil {
		return err
	}
	return p.newCommand(opDeliverBolus).runSet(paramBuffer(0x01, byte(strokes)))
}

// SetTBUnits switches the pump between absolute and percentage
// temporary basals.
func (p *Pump) SetTBUnits(units TBUnits) error {
	if err := byteops.CheckIntInRange(int(units), int(TBAbsolute), int(TBPercent), "TB units"); err != nil {
		return err
	}
	return p.newCommand(opSetTBUnits).runSet(paramBuffer(0x01, byte(units)))
}

// SetAbsoluteTB starts a temporary basal of rate U/h for the given
// duration in minutes. The duration must be a whole number of
// half-hour blocks.
func (p *Pump) SetAbsoluteTB(rate float64, duration int) error {
	strokes := int(math.Round(rate / BasalStroke))
	if err := byteops.CheckIntInRange(strokes, 0, 1400, "TB rate"); err != nil {
		return err
	}
	blocks, err := durationBlocks(duration)
	if err != nil {
		return err
	}

	rateBytes, err := byteops.Pack(strokes, 2, byteops.BigEndian)
	if err != nil {
		return err
	}
	return p.newCommand(opSetAbsoluteTB).runSet(
		paramBuffer(0x03, rateBytes[0], rateBytes[1], byte(blocks)))
}

// SetPercentageTB starts a temporary basal of rate percent for the
// given duration in minutes.
func (p *Pump) SetPercentageTB(rate int, duration int) error {
	if err := byteops.CheckIntInRange(rate, 0, 200, "TB rate"); err != nil {
		return err
	}
	blocks, err := durationBlocks(duration)
	if err != nil {
		return err
	}
	return p.newCommand(opSetPercentageTB).runSet(
		paramBuffer(0x02, byte(rate), byte(blocks)))
}

func durationBlocks(duration int) (int, error) {
	if duration%BasalTimeBlock != 0 {
		return 0, fmt.Errorf("%w: TB duration %d is not a multiple of %d minutes",
			byteops.ErrBadArgument, duration, BasalTimeBlock)
	}
	blocks := duration / BasalTimeBlock
	if err := byteops.CheckIntInRange(blocks, 0, 48, "TB duration"); err != nil {
		return 0, err
	}
	return blocks, nil
}
