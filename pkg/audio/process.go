package audio

import (
	"fmt"
	"math"
)

// ApplySpeedPitch decodes the WAV file at src, applies the speed and pitch
// transforms, and writes the result to dst as 16-bit PCM at the source sample
// rate.
//
// speed is a playback-rate multiplier (time-stretch, duration changes, pitch
// does not); pitch is a shift in semitones (pitch changes, duration does
// not). Values within 1e-3 of their neutral points (1.0 and 0.0) skip the
// corresponding transform. Returns [ErrEmptyAudio] when the decoded waveform
// has no samples.
func ApplySpeedPitch(src, dst string, speed, pitch float64) error {
	samples, rate, err := Decode(src)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return ErrEmptyAudio
	}

	if math.Abs(speed-1) > 1e-3 {
		samples = TimeStretch(samples, speed)
	}
	if math.Abs(pitch) > 1e-3 {
		samples = PitchShift(samples, rate, pitch)
	}

	if err := EncodePCM16(dst, samples, rate); err != nil {
		return fmt.Errorf("audio: encode %q: %w", dst, err)
	}
	return nil
}
