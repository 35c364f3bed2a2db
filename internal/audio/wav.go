package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents a canonical 44-byte PCM WAV header
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV wraps normalized float32 samples in a mono 16-bit PCM WAV
// container. Samples outside [-1, 1) are clamped.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to encode")
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i] = int16(v)
	}

	return encodePCM16(pcm, sampleRate)
}

func encodePCM16(pcm []int16, sampleRate int) ([]byte, error) {
	dataSize := uint32(len(pcm) * 2)

	header := WAVHeader{
		ChunkSize:     36 + dataSize,
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2Size: dataSize,
	}
	copy(header.ChunkID[:], "RIFF")
	copy(header.Format[:], "WAVE")
	copy(header.Subchunk1ID[:], "fmt ")
	copy(header.Subchunk2ID[:], "data")

	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataSize)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write WAV data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV extracts mono PCM16 samples from a WAV container produced by
// EncodeWAV. Used in tests to verify round trips.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("WAV data too short: %d bytes", len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:44]), binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAV file")
	}
	if header.AudioFormat != 1 || header.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported WAV format: format=%d bits=%d",
			header.AudioFormat, header.BitsPerSample)
	}

	body := data[44:]
	if uint32(len(body)) < header.Subchunk2Size {
		return nil, 0, fmt.Errorf("truncated WAV data: have %d bytes, header says %d",
			len(body), header.Subchunk2Size)
	}

	pcm := make([]int16, header.Subchunk2Size/2)
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &pcm); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	return pcm, int(header.SampleRate), nil
}
