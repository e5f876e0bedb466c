package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/forPelevin/dubstudio/internal/types"
)

const WAVHeaderSize = 44

// WAVHeader mirrors the fixed fields of a canonical 44-byte PCM header.
type WAVHeader struct {
	RIFFSize      uint32
	FormatTag     uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// EncodeWAV renders b as a RIFF/WAVE file with 16-bit PCM samples.
//
// Samples are clamped to [-1, 1]; negative values are scaled by 32768 and
// non-negative values by 32767, then truncated toward zero. A buffer too
// large for a RIFF container is a programming error and panics with an
// *types.EncodeError.
func EncodeWAV(b *SampleBuffer) []byte {
	channels := b.Channels()
	frames := b.Frames()
	dataSize := frames * channels * 2
	if uint64(dataSize) > math.MaxUint32-WAVHeaderSize || channels > math.MaxUint16/2 {
		panic(&types.EncodeError{Reason: fmt.Sprintf("%d frames x %d channels does not fit a RIFF container", frames, channels)})
	}
	out := make([]byte, WAVHeaderSize+dataSize)

	le := binary.LittleEndian
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(len(out)-8))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1)
	le.PutUint16(out[22:24], uint16(channels))
	le.PutUint32(out[24:28], uint32(b.SampleRate()))
	le.PutUint32(out[28:32], uint32(b.SampleRate()*2*channels))
	le.PutUint16(out[32:34], uint16(2*channels))
	le.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(out)-WAVHeaderSize))

	pos := WAVHeaderSize
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			le.PutUint16(out[pos:], uint16(quantize(b.channels[c][i])))
			pos += 2
		}
	}
	return out
}

func quantize(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// ParseWAVHeader reads the canonical header produced by EncodeWAV.
func ParseWAVHeader(b []byte) (WAVHeader, error) {
	if len(b) < WAVHeaderSize {
		return WAVHeader{}, &types.DecodeError{Reason: fmt.Sprintf("wav too short: %d bytes", len(b))}
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return WAVHeader{}, &types.DecodeError{Reason: "missing RIFF/WAVE magic"}
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return WAVHeader{}, &types.DecodeError{Reason: "unexpected chunk layout"}
	}
	le := binary.LittleEndian
	return WAVHeader{
		RIFFSize:      le.Uint32(b[4:8]),
		FormatTag:     le.Uint16(b[20:22]),
		Channels:      le.Uint16(b[22:24]),
		SampleRate:    le.Uint32(b[24:28]),
		ByteRate:      le.Uint32(b[28:32]),
		BlockAlign:    le.Uint16(b[32:34]),
		BitsPerSample: le.Uint16(b[34:36]),
		DataSize:      le.Uint32(b[40:44]),
	}, nil
}

// DecodeWAV parses a canonical 16-bit PCM WAV file into a SampleBuffer.
func DecodeWAV(b []byte) (*SampleBuffer, error) {
	h, err := ParseWAVHeader(b)
	if err != nil {
		return nil, err
	}
	if h.FormatTag != 1 || h.BitsPerSample != 16 {
		return nil, &types.DecodeError{Reason: fmt.Sprintf("unsupported wav format %d/%d-bit", h.FormatTag, h.BitsPerSample)}
	}
	data := b[WAVHeaderSize:]
	if int(h.DataSize) < len(data) {
		data = data[:h.DataSize]
	}
	return DecodePCM(data, int(h.SampleRate), int(h.Channels))
}
