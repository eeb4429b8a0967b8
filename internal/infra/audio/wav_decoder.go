// Package audio provides rag.AudioDecoder adapters.
package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// WavDecoder decodes a RIFF/WAV container of 16-bit signed little-endian PCM
// into mono float32 samples normalized to [-1.0, 1.0]. Compressed audio or
// video containers are not decoded; any input that is not 16-bit PCM WAV is
// rejected.
type WavDecoder struct {
	RequireSampleRate int
}

// NewWavDecoder constructs a WavDecoder. requireSampleRate rejects input at
// any other rate when non-zero; pass 0 to accept any rate.
func NewWavDecoder(requireSampleRate int) *WavDecoder {
	return &WavDecoder{RequireSampleRate: requireSampleRate}
}

// Decode implements rag.AudioDecoder.
func (d *WavDecoder) Decode(data []byte) ([]float32, error) {
	pcm, sampleRate, channels, bitsPerSample, err := parseWav(data)
	if err != nil {
		return nil, err
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d, only 16-bit PCM is supported", bitsPerSample)
	}
	if d.RequireSampleRate > 0 && sampleRate != d.RequireSampleRate {
		return nil, fmt.Errorf("audio: sample rate %d does not match required %d", sampleRate, d.RequireSampleRate)
	}
	return pcmToFloat32Mono(pcm, channels), nil
}

// parseWav walks a RIFF/WAV container's fmt and data sub-chunks, returning
// the raw PCM payload and its format parameters.
func parseWav(data []byte) (pcm []byte, sampleRate, channels, bitsPerSample int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, 0, fmt.Errorf("audio: not a valid RIFF/WAVE container")
	}

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return nil, 0, 0, 0, fmt.Errorf("audio: truncated %s chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, 0, 0, fmt.Errorf("audio: fmt chunk too short")
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if pcm == nil {
		return nil, 0, 0, 0, fmt.Errorf("audio: no data chunk found")
	}
	if sampleRate == 0 {
		return nil, 0, 0, 0, fmt.Errorf("audio: no fmt chunk found")
	}
	return pcm, sampleRate, channels, bitsPerSample, nil
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := 0; i < samplesPerChannel; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalized to [-1.0, 1.0].
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

var _ rag.AudioDecoder = (*WavDecoder)(nil)
