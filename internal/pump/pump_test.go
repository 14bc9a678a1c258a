package pump

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minimed/internal/byteops"
	"minimed/internal/packet"
	"minimed/internal/stick"
)

var testSerial = [3]byte{0x79, 0x91, 0x63}

// exchange is one scripted radio round-trip: either a raw response or
// an error.
type exchange struct {
	resp []byte
	err  error
}

// fakeTransport plays back scripted exchanges and records every
// decoded request and tune call.
type fakeTransport struct {
	t        *testing.T
	queue    []exchange
	requests [][]byte // decoded logical request packets
	tuned    []float64
	tuneErr  error
	// respond, when set, overrides the queue.
	respond func(req []byte) ([]byte, error)
}

func (f *fakeTransport) RadioTXRX(data []byte, _ stick.TXRXParams) ([]byte, error) {
	dec, err := packet.Decode(data)
	require.NoError(f.t, err, "request must be line-decodable")
	f.requests = append(f.requests, dec)

	if f.respond != nil {
		return f.respond(dec)
	}
	require.NotEmpty(f.t, f.queue, "unexpected radio exchange")
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func (f *fakeTransport) Tune(mhz float64) error {
	f.tuned = append(f.tuned, mhz)
	return f.tuneErr
}

// respond builds the raw transport bytes of a pump response.
func respond(t *testing.T, code byte, payload []byte, rssiRaw byte) []byte {
	t.Helper()
	enc, err := packet.NewToPump(testSerial, code, payload).Encode()
	require.NoError(t, err)
	return append([]byte{0x01, rssiRaw}, enc...)
}

func ok(t *testing.T, code byte, payload []byte) exchange {
	return exchange{resp: respond(t, code, payload, 0x2E)}
}

func ackExchange(t *testing.T) exchange {
	return ok(t, opReadMore, []byte{0x00})
}

func newTestPump(f *fakeTransport) *Pump {
	return New(f, testSerial)
}

func TestModel(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadModel, []byte{0x00, '7', '2', '2', 0x00}),
	}}
	p := newTestPump(f)

	model, err := p.Model()
	require.NoError(t, err)
	assert.Equal(t, 722, model)

	require.Len(t, f.requests, 1)
	assert.Equal(t, []byte{0xA7, 0x79, 0x91, 0x63, 0x8D, 0x00}, f.requests[0][:6])
	assert.Equal(t, byteops.CRC8(f.requests[0][:6]), f.requests[0][6])
}

func TestTimeCommand(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadTime, []byte{14, 30, 5, 0x07, 0xE1, 8, 15}),
	}}
	p := newTestPump(f)

	clock, err := p.Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 8, 15, 14, 30, 5, 0, time.Local), clock)
}

func TestFirmware(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadFirmware, []byte("VER 1.061.6")),
	}}
	p := newTestPump(f)

	fw, err := p.Firmware()
	require.NoError(t, err)
	assert.Equal(t, "VER 1.06 1.6", fw)
}

func TestBattery(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadBattery, []byte{0x00, 0x01, 0x4D}),
	}}
	p := newTestPump(f)

	volts, err := p.Battery()
	require.NoError(t, err)
	assert.Equal(t, 3.33, volts)
}

func TestReservoir(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadReservoir, []byte{0x03, 0xB5, 0x00}),
	}}
	p := newTestPump(f)

	units, err := p.Reservoir()
	require.NoError(t, err)
	assert.Equal(t, 94.9, units)
}

func TestStatus(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadStatus, []byte{3, 0, 1}),
	}}
	p := newTestPump(f)

	status, err := p.Status()
	require.NoError(t, err)
	assert.Equal(t, Status{Normal: true, Bolusing: false, Suspended: true}, status)
}

func TestSettings(t *testing.T) {
	payload := make([]byte, 19)
	payload[5] = 50                     // max bolus 5.0 U
	payload[6], payload[7] = 0x01, 0x40 // max basal 8.0 U/h
	payload[17] = 4
	f := &fakeTransport{t: t, queue: []exchange{ok(t, opReadSettings, payload)}}
	p := newTestPump(f)

	settings, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, Settings{DIA: 4, MaxBolus: 5.0, MaxBasal: 8.0}, settings)
}

func TestUnits(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadBGUnits, []byte{1}),
		ok(t, opReadCarbUnits, []byte{2}),
	}}
	p := newTestPump(f)

	bg, err := p.BGUnits()
	require.NoError(t, err)
	assert.Equal(t, "mg/dL", bg)

	carbs, err := p.CarbUnits()
	require.NoError(t, err)
	assert.Equal(t, "exchange", carbs)
}

func TestBGTargets(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadBGTargets, []byte{1, 0, 100, 120, 16, 90, 110}),
	}}
	p := newTestPump(f)

	targets, err := p.BGTargets()
	require.NoError(t, err)
	assert.Equal(t, BGTargets{
		Units: "mg/dL",
		Targets: []BGTarget{
			{Time: "00:00", Low: 100, High: 120},
			{Time: "08:00", Low: 90, High: 110},
		},
	}, targets)
}

func TestISF(t *testing.T) {
	// Entry byte 66 = 0x42: factor high bits 1, time block 2.
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadISF, []byte{2, 66, 44}),
	}}
	p := newTestPump(f)

	isf, err := p.ISF()
	require.NoError(t, err)
	assert.Equal(t, Factors{
		Units:   "mmol/L/U",
		Factors: []Factor{{Time: "01:00", Value: 30.0}},
	}, isf)
}

func TestBasalProfile(t *testing.T) {
	// Core carries two entries and the zero terminator group.
	profile := []byte{40, 0, 0, 60, 0, 16, 0, 0, 0}
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opReadBasalStandard, []byte{0x00}), // prelude
		ok(t, opReadBasalStandard, profile),      // core
		ok(t, opReadMore, []byte{0x00}),          // postlude
	}}
	p := newTestPump(f)

	rates, err := p.BasalProfile(BasalStandard)
	require.NoError(t, err)
	assert.Equal(t, []BasalRate{
		{Time: "00:00", Rate: 1.0},
		{Time: "08:00", Rate: 1.5},
	}, rates)
	assert.Len(t, f.requests, 3)
}

func TestHistoryPageRoundTrips(t *testing.T) {
	queue := []exchange{
		ok(t, opReadHistoryPage, []byte{0x00}), // prelude
		ok(t, opReadHistoryPage, []byte{0x10}), // core
	}
	for i := 1; i <= historyPostludeReps; i++ {
		queue = append(queue, ok(t, opReadMore, []byte{byte(i)}))
	}
	f := &fakeTransport{t: t, queue: queue}
	p := newTestPump(f)

	data, err := p.HistoryPage(3)
	require.NoError(t, err)

	// Exactly 1 prelude + 1 core + 14 postlude round-trips.
	require.Len(t, f.requests, 16)

	// The wake-up request carries the default parameter buffer.
	assert.Equal(t, []byte{0xA7, 0x79, 0x91, 0x63, opReadHistoryPage, 0x00}, f.requests[0][:6])

	// The core request selects the page in the long parameter buffer.
	core := f.requests[1]
	require.Len(t, core, 5+paramBufLen+1)
	assert.Equal(t, byte(opReadHistoryPage), core[4])
	assert.Equal(t, byte(0x01), core[5])
	assert.Equal(t, byte(3), core[6])

	for _, req := range f.requests[2:] {
		assert.Equal(t, byte(opReadMore), req[4])
	}

	// Core payload plus continuations, in arrival order.
	want := []byte{0x10}
	for i := 1; i <= historyPostludeReps; i++ {
		want = append(want, byte(i))
	}
	assert.Equal(t, want, data)
}

func TestHistoryPageRange(t *testing.T) {
	f := &fakeTransport{t: t}
	p := newTestPump(f)

	_, err := p.HistoryPage(36)
	assert.ErrorIs(t, err, byteops.ErrBadArgument)
	_, err = p.HistoryPage(-1)
	assert.ErrorIs(t, err, byteops.ErrBadArgument)
	assert.Empty(t, f.requests)
}

func TestPowerRetriesThenSucceeds(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		{err: &stick.RadioError{Kind: stick.RadioTimeout}},
		{err: &stick.RadioError{Kind: stick.RadioNoData}},
		{resp: []byte{0x01}}, // too short to parse
		ok(t, opPower, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.Power(10))
	require.Len(t, f.requests, 5)

	core := f.requests[4]
	assert.Equal(t, byte(opPower), core[4])
	assert.Equal(t, byte(0x02), core[5])
	assert.Equal(t, byte(0x01), core[6])
	assert.Equal(t, byte(10), core[7])
}

func TestPowerNoPump(t *testing.T) {
	f := &fakeTransport{t: t, respond: func([]byte) ([]byte, error) {
		return nil, &stick.RadioError{Kind: stick.RadioTimeout}
	}}
	p := newTestPump(f)

	err := p.Power(10)
	assert.ErrorIs(t, err, ErrNoPump)
	assert.Len(t, f.requests, powerPreludeReps)
}

func TestPowerValidation(t *testing.T) {
	f := &fakeTransport{t: t}
	p := newTestPump(f)

	for _, minutes := range []int{-1, 31, 100} {
		assert.ErrorIs(t, p.Power(minutes), byteops.ErrBadArgument, "minutes %d", minutes)
	}
	assert.Empty(t, f.requests)
}

func TestSuspendResume(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opSuspendResume, []byte{0x00}),
		ackExchange(t),
		ok(t, opSuspendResume, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.Suspend())
	require.NoError(t, p.Resume())
	require.Len(t, f.requests, 4)

	// Same opcode, parameter byte decides.
	assert.Equal(t, byte(opSuspendResume), f.requests[1][4])
	assert.Equal(t, byte(0x01), f.requests[1][6])
	assert.Equal(t, byte(opSuspendResume), f.requests[3][4])
	assert.Equal(t, byte(0x00), f.requests[3][6])
}

func TestSetCommandNotAcknowledged(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opSuspendResume, []byte{0x00}),
		ok(t, 0x15, []byte{0x00}), // NAK instead of ACK
	}}
	p := newTestPump(f)

	err := p.Suspend()
	var uce *UnsuccessfulCommandError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, byte(0x15), uce.Code)
}

func TestPushButton(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opPushButton, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.PushButton(ButtonEasy))
	core := f.requests[1]
	assert.Equal(t, byte(opPushButton), core[4])
	assert.Equal(t, byte(0x01), core[5])
	assert.Equal(t, byte(0x00), core[6])

	assert.ErrorIs(t, p.PushButton(Button(7)), byteops.ErrBadArgument)
}

func TestBolus(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opDeliverBolus, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.Bolus(2.5))
	core := f.requests[1]
	assert.Equal(t, byte(opDeliverBolus), core[4])
	assert.Equal(t, byte(25), core[6])

	assert.ErrorIs(t, p.Bolus(25.1), byteops.ErrBadArgument)
	assert.ErrorIs(t, p.Bolus(-0.5), byteops.ErrBadArgument)
}

func TestSetAbsoluteTB(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opSetAbsoluteTB, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.SetAbsoluteTB(2.5, 60))
	core := f.requests[1]
	assert.Equal(t, byte(opSetAbsoluteTB), core[4])
	assert.Equal(t, byte(0x03), core[5])
	// 100 strokes, big-endian
	assert.Equal(t, byte(0x00), core[6])
	assert.Equal(t, byte(100), core[7])
	assert.Equal(t, byte(2), core[8])

	assert.ErrorIs(t, p.SetAbsoluteTB(35.1, 30), byteops.ErrBadArgument)
	assert.ErrorIs(t, p.SetAbsoluteTB(1.0, 45), byteops.ErrBadArgument)
	assert.ErrorIs(t, p.SetAbsoluteTB(1.0, 1470), byteops.ErrBadArgument)
}

func TestSetPercentageTB(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opSetPercentageTB, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.SetPercentageTB(50, 30))
	core := f.requests[1]
	assert.Equal(t, byte(opSetPercentageTB), core[4])
	assert.Equal(t, byte(0x02), core[5])
	assert.Equal(t, byte(50), core[6])
	assert.Equal(t, byte(1), core[7])

	assert.ErrorIs(t, p.SetPercentageTB(201, 30), byteops.ErrBadArgument)
}

func TestSetTBUnits(t *testing.T) {
	f := &fakeTransport{t: t, queue: []exchange{
		ok(t, opSetTBUnits, []byte{0x00}),
		ackExchange(t),
	}}
	p := newTestPump(f)

	require.NoError(t, p.SetTBUnits(TBPercent))
	assert.Equal(t, byte(1), f.requests[1][6])

	assert.ErrorIs(t, p.SetTBUnits(TBUnits(3)), byteops.ErrBadArgument)
}
