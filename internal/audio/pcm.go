// Package audio holds the wire codec for voice frames, fixed-size framing,
// rate conversion, and a software output context with a sample clock.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InputSampleRate is the capture rate the remote endpoint expects.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of synthesized speech chunks.
	OutputSampleRate = 24000

	bytesPerSample = 2

	// DefaultFrameSize is the number of samples per outbound frame.
	DefaultFrameSize = 4096
)

var (
	// ErrEmptyAudio indicates a chunk with no samples.
	ErrEmptyAudio = errors.New("empty audio data")
	// ErrOddLength indicates PCM16 data that is not sample aligned.
	ErrOddLength = errors.New("pcm16 data is not aligned to 2-byte samples")
)

// InputMIMEType is the mime type attached to outbound frames.
func InputMIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate)
}

// FloatToPCM16 converts float samples in [-1, 1] to 16-bit little-endian PCM.
// Values outside the range are clamped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian PCM to float samples.
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// Int16ToFloat converts native int16 samples (as produced by opus) to floats.
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768
	}
	return out
}

// FloatToInt16 converts float samples to native int16 with clamping.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// EncodeFrame turns one captured frame into its wire form: PCM16 LE, base64.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodeChunk decodes a base64 PCM16 chunk into a Buffer at sampleRate.
func DecodeChunk(data string, sampleRate int) (Buffer, error) {
	if data == "" {
		return Buffer{}, ErrEmptyAudio
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Buffer{}, fmt.Errorf("decode base64 audio: %w", err)
	}
	samples, err := PCM16ToFloat(raw)
	if err != nil {
		return Buffer{}, err
	}
	if len(samples) == 0 {
		return Buffer{}, ErrEmptyAudio
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Buffer is a linear mono sample buffer.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration is the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	return SamplesDuration(len(b.Samples), b.SampleRate)
}

// SamplesDuration converts a sample count at rate into a duration.
func SamplesDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration((int64(samples)*int64(time.Second) + int64(rate)/2) / int64(rate))
}

// DurationSamples converts d into the nearest whole number of samples at rate.
func DurationSamples(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}
