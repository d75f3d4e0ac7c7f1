package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// WAVHeader is the canonical 44-byte RIFF/WAVE PCM header.
type WAVHeader struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// EncodeWAV prefixes raw little-endian PCM with a WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	out := make([]byte, wavHeaderSize+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}

// NarrationWAV wraps a narration payload (PCM16, mono, 24 kHz) for export.
func NarrationWAV(pcm []byte) []byte {
	return EncodeWAV(pcm, int(NarrationSampleRate), NarrationChannels, 8*bytesPerSample)
}

// ParseWAVHeader reads a header written by EncodeWAV and returns it with
// the PCM payload.
func ParseWAVHeader(data []byte) (WAVHeader, []byte, error) {
	var h WAVHeader
	if len(data) < wavHeaderSize {
		return h, nil, fmt.Errorf("wav: %d bytes is shorter than the header", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, nil, fmt.Errorf("wav: missing RIFF/WAVE magic")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return h, nil, fmt.Errorf("wav: unexpected chunk layout")
	}

	h.AudioFormat = binary.LittleEndian.Uint16(data[20:22])
	h.Channels = binary.LittleEndian.Uint16(data[22:24])
	h.SampleRate = binary.LittleEndian.Uint32(data[24:28])
	h.ByteRate = binary.LittleEndian.Uint32(data[28:32])
	h.BlockAlign = binary.LittleEndian.Uint16(data[32:34])
	h.BitsPerSample = binary.LittleEndian.Uint16(data[34:36])
	h.DataSize = binary.LittleEndian.Uint32(data[40:44])

	if riff := binary.LittleEndian.Uint32(data[4:8]); int(riff) != 36+int(h.DataSize) {
		return h, nil, fmt.Errorf("wav: riff size %d does not match data size %d", riff, h.DataSize)
	}
	end := wavHeaderSize + int(h.DataSize)
	if end > len(data) {
		return h, nil, fmt.Errorf("wav: data chunk truncated (%d of %d bytes)", len(data)-wavHeaderSize, h.DataSize)
	}
	return h, data[wavHeaderSize:end], nil
}
