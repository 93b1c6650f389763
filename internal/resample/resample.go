// Package resample converts mono audio between sample rates in the
// frequency domain, producing fixed-size output blocks from fixed-size
// input blocks.
//
// The converter reduces the rate ratio to p:q, lowpass-filters each input
// sub-chunk by fast convolution (windowed-sinc kernel multiplied in the
// frequency domain) and changes the sample rate by resizing the spectrum
// between an FFT of 2*q*k points and one of 2*p*k points. The convolution
// tail is carried across calls by overlap-add, so a continuous signal fed
// block by block comes out seamless.
package resample

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// subChunks splits every conversion call into smaller FFT blocks,
	// trading a little overhead for lower latency per call.
	subChunks = 2

	// cutoffFactor places the anti-alias cutoff just below the narrower
	// of the two Nyquist frequencies.
	cutoffFactor = 0.95
)

// Converter turns blocks of exactly InputLen samples at the input rate
// into up to OutputLen samples at the output rate. It is not safe for
// concurrent use; all buffers are allocated at construction.
type Converter struct {
	inRate  int
	outRate int

	subIn  int // input samples per sub-chunk
	subOut int // output samples per sub-chunk
	inLen  int // samples consumed per Convert call
	outLen int // maximum samples produced per Convert call
	skip   int // output samples still owed to filter group delay

	fwd  *fourier.FFT
	inv  *fourier.FFT
	filt []complex128 // lowpass response per input bin, 1/fftIn folded in

	realIn  []float64
	coefIn  []complex128
	coefOut []complex128
	realOut []float64
	tail    []float64
	out     []float32
}

// New builds a converter from inRate to outRate that emits blocks of at
// most outBlock samples. It fails if either rate is non-positive or the
// reduced ratio cannot fit an integral sub-chunk pair inside outBlock.
func New(inRate, outRate, outBlock int) (*Converter, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate conversion %d -> %d", inRate, outRate)
	}
	if outBlock <= 0 {
		return nil, fmt.Errorf("resample: invalid output block size %d", outBlock)
	}

	g := gcd(inRate, outRate)
	p := outRate / g
	q := inRate / g

	subOut := (outBlock / subChunks / p) * p
	if subOut == 0 {
		return nil, fmt.Errorf("resample: ratio %d:%d is not representable within an output block of %d", inRate, outRate, outBlock)
	}
	subIn := subOut / p * q

	fftIn := 2 * subIn
	fftOut := 2 * subOut

	c := &Converter{
		inRate:  inRate,
		outRate: outRate,
		subIn:   subIn,
		subOut:  subOut,
		inLen:   subChunks * subIn,
		outLen:  subChunks * subOut,
		skip:    subOut / 2,
		fwd:     fourier.NewFFT(fftIn),
		inv:     fourier.NewFFT(fftOut),
		realIn:  make([]float64, fftIn),
		coefIn:  make([]complex128, fftIn/2+1),
		coefOut: make([]complex128, fftOut/2+1),
		realOut: make([]float64, fftOut),
		tail:    make([]float64, subOut),
		out:     make([]float32, subChunks*subOut),
	}
	c.filt = lowpassSpectrum(c.fwd, subIn, float64(p)/float64(q))
	return c, nil
}

// InputLen returns the exact number of samples every Convert call must
// supply. It never changes for the lifetime of the converter.
func (c *Converter) InputLen() int { return c.inLen }

// OutputLen returns the maximum number of samples a Convert call yields.
func (c *Converter) OutputLen() int { return c.outLen }

// Convert consumes exactly InputLen samples and returns between 0 and
// OutputLen converted samples. Early calls return fewer samples while the
// filter's group delay is discarded. The returned slice is reused by the
// next call.
func (c *Converter) Convert(in []float32) ([]float32, error) {
	if len(in) != c.inLen {
		return nil, fmt.Errorf("resample: input block must hold %d samples, got %d", c.inLen, len(in))
	}

	produced := 0
	for s := 0; s < subChunks; s++ {
		seg := in[s*c.subIn : (s+1)*c.subIn]
		for i, v := range seg {
			c.realIn[i] = float64(v)
		}
		for i := c.subIn; i < len(c.realIn); i++ {
			c.realIn[i] = 0
		}

		c.fwd.Coefficients(c.coefIn, c.realIn)

		nb := c.subIn
		if c.subOut < nb {
			nb = c.subOut
		}
		for k := 0; k <= nb; k++ {
			c.coefOut[k] = c.coefIn[k] * c.filt[k]
		}
		for k := nb + 1; k < len(c.coefOut); k++ {
			c.coefOut[k] = 0
		}
		// The Nyquist bin of a real transform must be real; the filter
		// has already attenuated it, so drop it outright.
		c.coefOut[len(c.coefOut)-1] = 0

		c.inv.Sequence(c.realOut, c.coefOut)

		for i := 0; i < c.subOut; i++ {
			c.out[produced+i] = float32(c.realOut[i] + c.tail[i])
		}
		for i := 0; i < c.subOut; i++ {
			c.tail[i] = c.realOut[c.subOut+i]
		}
		produced += c.subOut
	}

	if c.skip > 0 {
		drop := c.skip
		if drop > produced {
			drop = produced
		}
		c.skip -= drop
		copy(c.out, c.out[drop:produced])
		produced -= drop
	}
	return c.out[:produced], nil
}

// lowpassSpectrum designs a windowed-sinc lowpass of length subIn+1 with
// cutoff just below min(input, output) Nyquist and returns its frequency
// response sampled at the forward FFT's bins, pre-scaled by 1/fftLen so
// the inverse transform needs no further normalization.
func lowpassSpectrum(fwd *fourier.FFT, subIn int, ratio float64) []complex128 {
	fftLen := fwd.Len()
	taps := subIn + 1

	cut := ratio
	if cut > 1 {
		cut = 1
	}
	fc := 0.5 * cutoffFactor * cut // cycles per input sample

	h := make([]float64, fftLen)
	center := float64(taps-1) / 2
	var sum float64
	for n := 0; n < taps; n++ {
		x := float64(n) - center
		v := 2 * fc * sinc(2*fc*x)
		v *= blackmanHarris(n, taps)
		h[n] = v
		sum += v
	}
	// Unity DC gain.
	for n := 0; n < taps; n++ {
		h[n] /= sum
	}

	spec := fwd.Coefficients(nil, h)
	scale := complex(1/float64(fftLen), 0)
	for k := range spec {
		spec[k] *= scale
	}
	return spec
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func blackmanHarris(n, size int) float64 {
	if size <= 1 {
		return 1
	}
	a := 2 * math.Pi * float64(n) / float64(size-1)
	return 0.35875 - 0.48829*math.Cos(a) + 0.14128*math.Cos(2*a) - 0.01168*math.Cos(3*a)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
