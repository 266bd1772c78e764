// Package audio provides the WAV codec and the two post-processing
// transforms applied to synthesised speech: time-stretch (speed without pitch
// change) and pitch-shift (pitch without duration change).
//
// Waveforms are handled as mono float64 sample slices in [-1, 1]; output is
// always re-encoded as 16-bit PCM at the source sample rate.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrEmptyAudio is returned when a decoded waveform contains no samples.
var ErrEmptyAudio = errors.New("audio: waveform is empty")

// WAVE format codes from the fmt chunk.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first sample
	DataSize   int // byte length of the data chunk
	Format     int
	SampleRate int
	Channels   int
	BitDepth   int
}

// parseWAV scans the RIFF/WAVE container and returns the location of the data
// chunk together with the format from the "fmt " sub-chunk. Walking the
// chunks is more robust than assuming a fixed 44-byte header because the fmt
// chunk size varies between encoders.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("audio: file too short to be a RIFF container")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("audio: missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Format = int(binary.LittleEndian.Uint16(fmtData[0:2]))
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitDepth = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("audio: data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			if info.DataOffset+info.DataSize > len(wav) {
				info.DataSize = len(wav) - info.DataOffset
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("audio: missing data chunk")
}

// Decode reads a WAV file and returns its samples as mono float64 in [-1, 1]
// together with the sample rate. 16-bit PCM and 32-bit IEEE float input are
// supported (inference backends commonly emit either); stereo input is
// downmixed by averaging the channels.
func Decode(path string) ([]float64, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read %q: %w", path, err)
	}

	info, err := parseWAV(raw)
	if err != nil {
		return nil, 0, err
	}
	pcm16 := info.Format == formatPCM && info.BitDepth == 16
	f32 := info.Format == formatIEEEFloat && info.BitDepth == 32
	if !pcm16 && !f32 {
		return nil, 0, fmt.Errorf("audio: unsupported format %d / %d-bit (want 16-bit PCM or 32-bit float)",
			info.Format, info.BitDepth)
	}
	if info.Channels < 1 || info.Channels > 2 {
		return nil, 0, fmt.Errorf("audio: unsupported channel count %d", info.Channels)
	}

	data := raw[info.DataOffset : info.DataOffset+info.DataSize]
	bytesPer := info.BitDepth / 8
	frameBytes := bytesPer * info.Channels
	frames := len(data) / frameBytes

	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < info.Channels; c++ {
			off := i*frameBytes + c*bytesPer
			if f32 {
				sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			} else {
				sum += float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
			}
		}
		samples[i] = sum / float64(info.Channels)
	}
	return samples, info.SampleRate, nil
}

// EncodePCM16 writes samples as a 16-bit PCM mono WAV file at the given
// sample rate. The file is assembled next to the target and moved into place
// with an atomic rename, so readers never observe a partially written file.
func EncodePCM16(path string, samples []float64, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmptyAudio
	}

	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		v := math.Round(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(v)))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("audio: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("audio: replace %q: %w", path, err)
	}
	return nil
}
