package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minimed/internal/packet"
	"minimed/internal/pump"
	"minimed/internal/stick"
)

var testSerial = [3]byte{0x79, 0x91, 0x63}

type fakeRadio struct {
	tuned []float64
}

func (f *fakeRadio) ReadName() (string, error)   { return "CC1111 stick", nil }
func (f *fakeRadio) ReadAuthor() (string, error) { return "keinechterarzt", nil }
func (f *fakeRadio) FlashLED() error             { return nil }
func (f *fakeRadio) Tune(mhz float64) error {
	f.tuned = append(f.tuned, mhz)
	return nil
}

// fakeTransport plays back scripted pump responses.
type fakeTransport struct {
	t     *testing.T
	queue [][]byte
	errs  []error
}

func (f *fakeTransport) RadioTXRX(data []byte, _ stick.TXRXParams) ([]byte, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	require.NotEmpty(f.t, f.queue, "unexpected radio exchange")
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, nil
}

func (f *fakeTransport) Tune(float64) error { return nil }

func respond(t *testing.T, code byte, payload []byte) []byte {
	t.Helper()
	enc, err := packet.NewToPump(testSerial, code, payload).Encode()
	require.NoError(t, err)
	return append([]byte{0x01, 0x2E}, enc...)
}

func serve(t *testing.T, f *fakeTransport, radio Radio, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(radio, pump.New(f, testSerial))

	if body == "" {
		body = "{}"
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStickInfo(t *testing.T) {
	rec := serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodGet, "/api/v1/stick", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CC1111 stick", body["name"])
	assert.Equal(t, "keinechterarzt", body["author"])
}

func TestGetModel(t *testing.T) {
	f := &fakeTransport{t: t, queue: [][]byte{
		respond(t, 0x8D, []byte{0x00, '7', '2', '2', 0x00}),
	}}
	rec := serve(t, f, &fakeRadio{}, http.MethodGet, "/api/v1/model", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"value": 722}`, rec.Body.String())
}

func TestTune(t *testing.T) {
	radio := &fakeRadio{}
	rec := serve(t, &fakeTransport{t: t}, radio, http.MethodPost, "/api/v1/tune",
		`{"frequency": 916.660}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{916.660}, radio.tuned)
}

func TestSuspendAcknowledged(t *testing.T) {
	f := &fakeTransport{t: t, queue: [][]byte{
		respond(t, 0x4D, []byte{0x00}), // prelude
		respond(t, 0x06, []byte{0x00}), // ACK
	}}
	rec := serve(t, f, &fakeRadio{}, http.MethodPost, "/api/v1/suspend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"acknowledged": true}`, rec.Body.String())
}

func TestPowerRejectsBadMinutes(t *testing.T) {
	rec := serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodPost, "/api/v1/power",
		`{"minutes": 31}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestButtonRejectsUnknown(t *testing.T) {
	rec := serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodPost, "/api/v1/button",
		`{"button": "MIDDLE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRejectsBadPage(t *testing.T) {
	rec := serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodGet, "/api/v1/history/99", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &fakeTransport{t: t}, &fakeRadio{}, http.MethodGet, "/api/v1/history/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRadioFailureMapsToGatewayTimeout(t *testing.T) {
	f := &fakeTransport{t: t, errs: []error{&stick.RadioError{Kind: stick.RadioTimeout}}}
	rec := serve(t, f, &fakeRadio{}, http.MethodGet, "/api/v1/model", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
