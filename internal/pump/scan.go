// internal/pump/scan.go
// Frequency scanner: sweep a regional band, sample per-channel signal
// strength with a benign pump read, and pick the best frequency.
package pump

import (
	"log"
	"math"

	"minimed/internal/packet"
	"minimed/internal/stick"
)

const (
	// defaultScanPoints frequencies are probed across the band.
	defaultScanPoints = 25

	// defaultScanSamples reads are taken per frequency.
	defaultScanSamples = 5

	// silentRSSI is recorded when a probe goes unanswered.
	silentRSSI = -99 // dBm
)

// ScanOptions bounds and sizes a frequency sweep. Zero values fall
// back to the North America band and the default point/sample counts.
type ScanOptions struct {
	F1, F2  float64 // MHz, inclusive
	Points  int
	Samples int
}

// Scan sweeps [F1, F2], tuning the radio to each of Points evenly
// spaced frequencies and reading the pump model Samples times. Among
// the frequencies whose mean RSSI is maximal, the arithmetic mean is
// returned.
func (p *Pump) Scan(opts ScanOptions) (float64, error) {
	if opts.F1 == 0 && opts.F2 == 0 {
		opts.F1, opts.F2 = stick.BandNA.Min, stick.BandNA.Max
	}
	if opts.Points == 0 {
		opts.Points = defaultScanPoints
	}
	if opts.Samples == 0 {
		opts.Samples = defaultScanSamples
	}

	// The sweep must lie entirely inside one regional band.
	valid := false
	for _, band := range stick.Bands() {
		if band.Contains(opts.F1) && band.Contains(opts.F2) {
			valid = true
			break
		}
	}
	if !valid || opts.F1 > opts.F2 || opts.Points < 1 || opts.Samples < 1 {
		return 0, stick.ErrBadFrequencies
	}

	freqs := spread(opts.F1, opts.F2, opts.Points)
	means := make([]float64, len(freqs))

	for i, f := range freqs {
		if err := p.transport.Tune(f); err != nil {
			return 0, err
		}

		sum := 0
		for s := 0; s < opts.Samples; s++ {
			rssi, err := p.sampleRSSI()
			if err != nil {
				return 0, err
			}
			sum += rssi
		}
		means[i] = float64(sum) / float64(opts.Samples)
		log.Printf("scan: %.3f MHz -> %.1f dBm", f, means[i])
	}

	best := means[0]
	for _, m := range means[1:] {
		best = math.Max(best, m)
	}

	sum, n := 0.0, 0
	for i, m := range means {
		if m == best {
			sum += freqs[i]
			n++
		}
	}
	chosen := sum / float64(n)
	log.Printf("scan: best frequency %.3f MHz (%.1f dBm)", chosen, best)
	return chosen, nil
}

// sampleRSSI issues one model read and reports the response's signal
// strength, or the silent floor when nothing intelligible came back.
func (p *Pump) sampleRSSI() (int, error) {
	resp, err := p.newCommand(opReadModel).run(nil)
	if err != nil {
		if stick.IsRadioError(err) || packet.IsInvalid(err) {
			return silentRSSI, nil
		}
		return 0, err
	}
	return resp.RSSI, nil
}

// spread returns n evenly spaced frequencies across [f1, f2],
// endpoints included, rounded to kHz.
func spread(f1, f2 float64, n int) []float64 {
	if n == 1 {
		return []float64{round3(f1)}
	}
	out := make([]float64, n)
	step := (f2 - f1) / float64(n-1)
	for i := range out {
		out[i] = round3(f1 + float64(i)*step)
	}
	return out
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
