package sbc

import (
	"math"
)

// analysis is the polyphase analysis filterbank for one subband count.
// Each channel keeps a 10*M sample history; every block shifts in M new
// samples and produces M subband samples.
type analysis struct {
	subbands int
	window   []float64   // 10*M prototype with polyphase sign alternation
	matrix   [][]float64 // M x 2M cosine modulation
	history  [2][]float64
}

var (
	analysis4 = newAnalysisTables(4)
	analysis8 = newAnalysisTables(8)
)

type analysisTables struct {
	window []float64
	matrix [][]float64
}

func newAnalysisTables(m int) analysisTables {
	return analysisTables{
		window: prototypeWindow(m),
		matrix: modulationMatrix(m),
	}
}

func newAnalysis(subbands int) *analysis {
	tables := analysis8
	if subbands == 4 {
		tables = analysis4
	}
	a := &analysis{
		subbands: subbands,
		window:   tables.window,
		matrix:   tables.matrix,
	}
	for ch := range a.history {
		a.history[ch] = make([]float64, 10*subbands)
	}
	return a
}

func (a *analysis) reset() {
	for ch := range a.history {
		for i := range a.history[ch] {
			a.history[ch][i] = 0
		}
	}
}

// block feeds M time-ordered samples of one channel and writes M subband
// samples to out.
func (a *analysis) block(ch int, in []float64, out []float64) {
	m := a.subbands
	x := a.history[ch]

	copy(x[m:], x[:len(x)-m])
	for i := 0; i < m; i++ {
		x[m-1-i] = in[i]
	}

	y := make([]float64, 2*m)
	for i := 0; i < 2*m; i++ {
		var sum float64
		for j := 0; j < 5; j++ {
			idx := i + j*2*m
			sum += a.window[idx] * x[idx]
		}
		y[i] = sum
	}

	for k := 0; k < m; k++ {
		var sum float64
		row := a.matrix[k]
		for i := 0; i < 2*m; i++ {
			sum += row[i] * y[i]
		}
		out[k] = sum
	}
}

// prototypeWindow builds the 10*M tap lowpass prototype, a Kaiser-windowed
// sinc with cutoff pi/2M centred on tap 5M, normalised to unity DC gain.
// Taps in odd 2M-long segments are negated to match the polyphase
// decomposition used by block.
func prototypeWindow(m int) []float64 {
	const beta = 6.0
	length := 10 * m
	centre := float64(5 * m)
	h := make([]float64, length)

	var sum float64
	for n := 1; n < length; n++ {
		t := float64(n) - centre
		var sinc float64
		if t == 0 {
			sinc = 1.0 / float64(2*m)
		} else {
			sinc = math.Sin(math.Pi*t/float64(2*m)) / (math.Pi * t)
		}
		r := t / centre
		w := besselI0(beta*math.Sqrt(1-r*r)) / besselI0(beta)
		h[n] = sinc * w
		sum += h[n]
	}

	for n := range h {
		h[n] /= sum
		if (n/(2*m))%2 == 1 {
			h[n] = -h[n]
		}
	}
	return h
}

func modulationMatrix(m int) [][]float64 {
	matrix := make([][]float64, m)
	for k := 0; k < m; k++ {
		matrix[k] = make([]float64, 2*m)
		for i := 0; i < 2*m; i++ {
			matrix[k][i] = math.Cos((float64(k) + 0.5) * (float64(i) - float64(m)/2) * math.Pi / float64(m))
		}
	}
	return matrix
}

// besselI0 evaluates the zeroth order modified Bessel function by its
// power series.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 50; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < 1e-12*sum {
			break
		}
	}
	return sum
}
