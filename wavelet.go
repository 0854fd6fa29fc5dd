package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Morlet mother-wavelet frequency, the usual omega0=6 choice that makes
// scale approximately equal to Fourier period.
const morletOmega0 = 6.0

// WaveletSpectrum is the time-by-scale power of a Morlet continuous wavelet
// transform, used to inspect at which time scales model error lives.
type WaveletSpectrum struct {
	// Scales in units of the sample spacing
	Scales []float64
	// Power[j][t] for scale j, time t
	Power [][]float64
}

// DefaultScales builds the conventional octave ladder: s0 * 2^(j/4) up to
// half the series length.
func DefaultScales(n int, dt float64) []float64 {
	s0 := 2 * dt
	var scales []float64
	for j := 0; ; j++ {
		s := s0 * math.Pow(2, float64(j)/4)
		if s > float64(n)*dt/2 {
			break
		}
		scales = append(scales, s)
	}
	return scales
}

// MorletPower computes the wavelet power spectrum of a fully observed series
// by the FFT convolution method: transform once, multiply by each scaled
// Morlet daughter in the frequency domain, invert. The series is centered
// first. Missing values are an input error; callers fill gaps (e.g. with the
// series mean) before transforming.
func MorletPower(x []float64, scales []float64, dt float64) (*WaveletSpectrum, error) {
	n := len(x)
	if n < 4 {
		return nil, fmt.Errorf("%w: series too short for a wavelet transform (%d)", ErrInvalidInput, n)
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("%w: no scales", ErrInvalidInput)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: sample spacing must be positive", ErrInvalidInput)
	}
	mean := 0.0
	for _, v := range x {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: series contains missing values; fill gaps before transforming", ErrInvalidInput)
		}
		mean += v
	}
	mean /= float64(n)

	seq := make([]complex128, n)
	for i, v := range x {
		seq[i] = complex(v-mean, 0)
	}

	fft := fourier.NewCmplxFFT(n)
	coeff := fft.Coefficients(nil, seq)

	// angular frequencies of the DFT bins
	omega := make([]float64, n)
	for k := 0; k <= n/2; k++ {
		omega[k] = 2 * math.Pi * float64(k) / (float64(n) * dt)
	}
	for k := n/2 + 1; k < n; k++ {
		omega[k] = -2 * math.Pi * float64(n-k) / (float64(n) * dt)
	}

	spec := &WaveletSpectrum{
		Scales: append([]float64(nil), scales...),
		Power:  make([][]float64, len(scales)),
	}

	prod := make([]complex128, n)
	for j, s := range scales {
		norm := math.Sqrt(2*math.Pi*s/dt) * math.Pow(math.Pi, -0.25)
		for k := 0; k < n; k++ {
			if omega[k] <= 0 {
				prod[k] = 0
				continue
			}
			d := s*omega[k] - morletOmega0
			prod[k] = coeff[k] * complex(norm*math.Exp(-d*d/2), 0)
		}
		w := fft.Sequence(nil, prod)
		row := make([]float64, n)
		for t := 0; t < n; t++ {
			// Sequence returns the inverse scaled by n
			re := real(w[t]) / float64(n)
			im := imag(w[t]) / float64(n)
			row[t] = re*re + im*im
		}
		spec.Power[j] = row
	}
	return spec, nil
}

// GlobalPower averages the spectrum over time, one value per scale.
func (ws *WaveletSpectrum) GlobalPower() []float64 {
	out := make([]float64, len(ws.Scales))
	for j, row := range ws.Power {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		out[j] = sum / float64(len(row))
	}
	return out
}

// FillMissing replaces NaN entries with the given value, returning a copy.
// The wavelet stage uses this to bridge masked-out observations.
func FillMissing(x []float64, fill float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = fill
		} else {
			out[i] = v
		}
	}
	return out
}
