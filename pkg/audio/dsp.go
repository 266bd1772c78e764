package audio

import "math"

// timeStretch frame geometry. A ~46 ms analysis frame at 44.1 kHz with 50%
// overlap and a ±frame/8 alignment search keeps transients intact for speech.
const (
	stretchFrame = 2048
	stretchSeek  = stretchFrame / 8
)

// TimeStretch changes playback speed without altering pitch using WSOLA
// (waveform-similarity overlap-add). rate > 1 speeds the audio up (shorter
// output), rate < 1 slows it down. The output length is approximately
// len(samples)/rate. A rate within 1e-3 of 1.0 returns a copy unchanged.
func TimeStretch(samples []float64, rate float64) []float64 {
	if rate <= 0 || math.Abs(rate-1) < 1e-3 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	frame := stretchFrame
	seek := stretchSeek
	// Inputs shorter than two frames cannot be overlap-added meaningfully;
	// shrink the geometry rather than refuse.
	if len(samples) < frame*2 {
		frame = len(samples) / 4
		if frame < 64 {
			out := make([]float64, len(samples))
			copy(out, samples)
			return out
		}
		seek = frame / 8
	}

	hopSyn := frame / 2
	hopAna := float64(hopSyn) * rate
	window := hannWindow(frame)

	targetLen := int(float64(len(samples)) / rate)
	out := make([]float64, targetLen+frame)
	norm := make([]float64, targetLen+frame)

	anaPos := 0.0
	for outPos := 0; outPos+frame <= len(out); outPos += hopSyn {
		ana := int(anaPos)
		if ana+frame+seek >= len(samples) {
			break
		}

		// After the first frame, nudge the analysis window within ±seek to
		// the offset whose start best continues the synthesised tail.
		if outPos > 0 && ana >= seek {
			ana += bestOffset(samples, ana, seek, out[outPos:outPos+hopSyn], norm[outPos:outPos+hopSyn])
		}

		for i := 0; i < frame; i++ {
			out[outPos+i] += samples[ana+i] * window[i]
			norm[outPos+i] += window[i]
		}

		anaPos += hopAna
	}

	for i := range out {
		if norm[i] > 1e-9 {
			out[i] /= norm[i]
		}
	}
	if targetLen > len(out) {
		targetLen = len(out)
	}
	return out[:targetLen]
}

// bestOffset searches d in [-seek, seek] for the candidate frame start whose
// first samples are most similar (by normalised cross-correlation) to the
// already-synthesised overlap region.
func bestOffset(samples []float64, ana, seek int, tail, tailNorm []float64) int {
	bestD := 0
	bestScore := math.Inf(-1)

	for d := -seek; d <= seek; d++ {
		start := ana + d
		if start < 0 || start+len(tail) > len(samples) {
			continue
		}
		var dot, energy float64
		for i := range tail {
			ref := tail[i]
			if tailNorm[i] > 1e-9 {
				ref /= tailNorm[i]
			}
			s := samples[start+i]
			dot += ref * s
			energy += s * s
		}
		score := dot
		if energy > 1e-9 {
			score = dot / math.Sqrt(energy)
		}
		if score > bestScore {
			bestScore = score
			bestD = d
		}
	}
	return bestD
}

// PitchShift shifts the pitch by the given number of semitones without
// changing the duration. Positive values raise the pitch. Implemented as a
// resample (which scales both pitch and duration by 2^(n/12)) followed by a
// compensating time-stretch back to the original length.
func PitchShift(samples []float64, sampleRate int, semitones float64) []float64 {
	if math.Abs(semitones) < 1e-3 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	factor := math.Pow(2, semitones/12)
	shifted := resampleStep(samples, factor)
	return TimeStretch(shifted, 1/factor)
}

// resampleStep reads the input with a fractional step using linear
// interpolation: step > 1 shortens the signal (raising pitch on playback),
// step < 1 lengthens it.
func resampleStep(samples []float64, step float64) []float64 {
	if step <= 0 || len(samples) == 0 {
		return nil
	}
	outLen := int(float64(len(samples)) / step)
	if outLen == 0 {
		return nil
	}

	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// hannWindow returns an n-point Hann window.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
