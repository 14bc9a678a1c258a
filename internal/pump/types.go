// internal/pump/types.go
package pump

// Status is the pump's run state.
type Status struct {
	Normal    bool `json:"normal"`
	Bolusing  bool `json:"bolusing"`
	Suspended bool `json:"suspended"`
}

// Settings are the pump's delivery limits. DIA is the raw byte the
// pump reports; the protocol does not document its unit.
type Settings struct {
	DIA      int     `json:"dia"`
	MaxBolus float64 `json:"maxBolus"` // U
	MaxBasal float64 `json:"maxBasal"` // U/h
}

// BGTarget is one blood-glucose target range starting at Time.
type BGTarget struct {
	Time string  `json:"time"` // HH:MM
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// BGTargets is the pump's target schedule.
type BGTargets struct {
	Units   string     `json:"units"`
	Targets []BGTarget `json:"targets"`
}

// Factor is one sensitivity or carb-ratio entry starting at Time.
type Factor struct {
	Time  string  `json:"time"` // HH:MM
	Value float64 `json:"value"`
}

// Factors is an insulin-sensitivity or carb-ratio schedule.
type Factors struct {
	Units   string   `json:"units"`
	Factors []Factor `json:"factors"`
}

// BasalRate is one basal schedule entry starting at Time.
type BasalRate struct {
	Time string  `json:"time"` // HH:MM
	Rate float64 `json:"rate"` // U/h
}

// BasalProfileType selects which of the pump's three basal profiles to
// read.
type BasalProfileType int

const (
	BasalStandard BasalProfileType = iota
	BasalA
	BasalB
)

func (t BasalProfileType) String() string {
	switch t {
	case BasalA:
		return "A"
	case BasalB:
		return "B"
	}
	return "Standard"
}

// Button is a physical pump button.
type Button int

const (
	ButtonEasy Button = iota
	ButtonEsc
	ButtonAct
	ButtonUp
	ButtonDown
)

func (b Button) String() string {
	switch b {
	case ButtonEasy:
		return "EASY"
	case ButtonEsc:
		return "ESC"
	case ButtonAct:
		return "ACT"
	case ButtonUp:
		return "UP"
	}
	return "DOWN"
}

// TBUnits selects how temporary basal rates are expressed.
type TBUnits int

const (
	TBAbsolute TBUnits = iota // U/h
	TBPercent
)

func (u TBUnits) String() string {
	if u == TBAbsolute {
		return "U/h"
	}
	return "%"
}
