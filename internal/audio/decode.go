package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// TargetSampleRate is the rate transcription expects.
const TargetSampleRate = 16000

// Decoder turns an encoded audio container into per-channel float samples in
// [-1, 1] at sampleRate.
type Decoder interface {
	Decode(ctx context.Context, data []byte, sampleRate int) ([][]float32, error)
}

// WAVDecoder decodes integer PCM WAV containers.
type WAVDecoder struct{}

// Decode parses data as WAV, normalises by bit depth, and resamples every
// channel linearly to sampleRate.
func (WAVDecoder) Decode(ctx context.Context, data []byte, sampleRate int) ([][]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate %d", sampleRate)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a PCM WAV container")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	srcRate := int(dec.SampleRate)
	if channels <= 0 || srcRate <= 0 {
		return nil, fmt.Errorf("invalid wav header: %d channels at %d Hz", channels, srcRate)
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if len(buf.Data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}

	frames := len(buf.Data) / channels
	out := make([][]float32, channels)
	scale := float32(int64(1) << (bitDepth - 1))
	for ch := range out {
		samples := make([]float32, frames)
		for i := 0; i < frames; i++ {
			v := buf.Data[i*channels+ch]
			if bitDepth == 8 {
				// 8-bit WAV is unsigned.
				v -= 128
			}
			samples[i] = clamp(float32(v) / scale)
		}
		out[ch] = Resample(samples, srcRate, sampleRate)
	}
	return out, nil
}

// Resample converts samples from src to dst Hz by linear interpolation.
func Resample(samples []float32, src, dst int) []float32 {
	if src == dst || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dst) / int64(src))
	if n == 0 {
		return []float32{}
	}
	out := make([]float32, n)
	ratio := float64(src) / float64(dst)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}

// Downmix averages channels into one. A single channel is returned as is.
func Downmix(channels [][]float32) []float32 {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) < n {
			n = len(ch)
		}
	}
	mono := make([]float32, n)
	inv := 1 / float32(len(channels))
	for i := range mono {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		mono[i] = sum * inv
	}
	return mono
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
