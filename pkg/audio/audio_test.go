package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxmimic/voxmimic/pkg/audio"
)

// sine generates n samples of a sine wave at freq Hz.
func sine(n, sampleRate int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	const rate = 22050
	in := sine(rate/2, rate, 440)
	path := filepath.Join(t.TempDir(), "tone.wav")

	if err := audio.EncodePCM16(path, in, rate); err != nil {
		t.Fatalf("EncodePCM16: %v", err)
	}

	out, gotRate, err := audio.Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("Decode: sample rate %d, want %d", gotRate, rate)
	}
	if len(out) != len(in) {
		t.Fatalf("Decode: %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1.0/32768*2 {
			t.Fatalf("sample %d: got %f, want %f (beyond quantisation error)", i, out[i], in[i])
		}
	}
}

// float32WAV assembles a 32-bit IEEE float WAV file, interleaving the given
// channels, the way float-output inference backends write them.
func float32WAV(t *testing.T, channels [][]float64, sampleRate int) []byte {
	t.Helper()

	ch := len(channels)
	frames := len(channels[0])
	dataSize := frames * ch * 4

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 3) // IEEE float
	binary.LittleEndian.PutUint16(buf[22:24], uint16(ch))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*ch*4))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(ch*4))
	binary.LittleEndian.PutUint16(buf[34:36], 32)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			off := 44 + (i*ch+c)*4
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(channels[c][i])))
		}
	}
	return buf
}

func TestDecodeFloat32(t *testing.T) {
	t.Parallel()

	const rate = 22050
	in := sine(rate/4, rate, 440)

	t.Run("mono", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "f32.wav")
		if err := os.WriteFile(path, float32WAV(t, [][]float64{in}, rate), 0o644); err != nil {
			t.Fatal(err)
		}

		out, gotRate, err := audio.Decode(path)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if gotRate != rate {
			t.Fatalf("sample rate %d, want %d", gotRate, rate)
		}
		if len(out) != len(in) {
			t.Fatalf("%d samples, want %d", len(out), len(in))
		}
		for i := range in {
			if math.Abs(out[i]-in[i]) > 1e-6 {
				t.Fatalf("sample %d: got %f, want %f", i, out[i], in[i])
			}
		}
	})

	t.Run("stereo downmix", func(t *testing.T) {
		t.Parallel()
		left, right := sine(1024, rate, 220), sine(1024, rate, 440)
		path := filepath.Join(t.TempDir(), "f32-stereo.wav")
		if err := os.WriteFile(path, float32WAV(t, [][]float64{left, right}, rate), 0o644); err != nil {
			t.Fatal(err)
		}

		out, _, err := audio.Decode(path)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(out) != len(left) {
			t.Fatalf("%d samples, want %d", len(out), len(left))
		}
		for i := range out {
			want := (left[i] + right[i]) / 2
			if math.Abs(out[i]-want) > 1e-6 {
				t.Fatalf("sample %d: got %f, want downmixed %f", i, out[i], want)
			}
		}
	})
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := audio.Decode(path); err == nil {
		t.Fatal("Decode: expected error for non-RIFF input")
	}
}

func TestEncodeEmptyWaveform(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := audio.EncodePCM16(path, nil, 44100); !errors.Is(err, audio.ErrEmptyAudio) {
		t.Fatalf("EncodePCM16: expected ErrEmptyAudio, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("EncodePCM16: no file may be created for an empty waveform")
	}
}

func TestTimeStretchScalesDuration(t *testing.T) {
	t.Parallel()

	const rate = 44100
	in := sine(rate, rate, 220) // 1 second

	for _, r := range []float64{0.5, 0.8, 1.25, 2.0} {
		out := audio.TimeStretch(in, r)
		want := float64(len(in)) / r
		if math.Abs(float64(len(out))-want) > 2048*2 {
			t.Errorf("TimeStretch(rate=%.2f): %d samples, want ≈ %.0f", r, len(out), want)
		}
	}
}

func TestTimeStretchNeutralRateCopies(t *testing.T) {
	t.Parallel()

	in := sine(4096, 44100, 220)
	out := audio.TimeStretch(in, 1.0)
	if len(out) != len(in) {
		t.Fatalf("TimeStretch(1.0): %d samples, want %d", len(out), len(in))
	}
	out[0] = 9
	if in[0] == 9 {
		t.Fatal("TimeStretch(1.0): must return a copy, not alias the input")
	}
}

func TestPitchShiftPreservesDuration(t *testing.T) {
	t.Parallel()

	const rate = 44100
	in := sine(rate, rate, 220)

	for _, semis := range []float64{-12, -1, 1.5, 12} {
		out := audio.PitchShift(in, rate, semis)
		if math.Abs(float64(len(out)-len(in))) > 2048*2 {
			t.Errorf("PitchShift(%+.1f): %d samples, want ≈ %d", semis, len(out), len(in))
		}
	}
}

func TestApplySpeedPitch(t *testing.T) {
	t.Parallel()

	const rate = 22050
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.wav")

	if err := audio.EncodePCM16(src, sine(rate, rate, 330), rate); err != nil {
		t.Fatalf("EncodePCM16: %v", err)
	}

	if err := audio.ApplySpeedPitch(src, dst, 1.25, -1); err != nil {
		t.Fatalf("ApplySpeedPitch: %v", err)
	}

	out, gotRate, err := audio.Decode(dst)
	if err != nil {
		t.Fatalf("Decode output: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("output sample rate %d, want source rate %d", gotRate, rate)
	}
	want := float64(rate) / 1.25
	if math.Abs(float64(len(out))-want) > 2048*3 {
		t.Fatalf("output length %d, want ≈ %.0f (speed 1.25)", len(out), want)
	}
}
