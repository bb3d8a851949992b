package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"battery/internal/fileutil"
)

// WriteWAV persists a clip as a 16-bit PCM mono WAV file. The write is
// atomic so a crash mid-trial never leaves a half-written recording.
func WriteWAV(path string, clip Clip) error {
	if clip.SampleRate <= 0 {
		return fmt.Errorf("wav: invalid sample rate %d", clip.SampleRate)
	}

	dataLen := len(clip.Samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(clip.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(clip.SampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))                 // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))                // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, sample := range clip.Samples {
		binary.Write(buf, binary.LittleEndian, floatToPCM16(sample))
	}

	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// ReadWAV loads a 16-bit PCM mono WAV file written by WriteWAV.
func ReadWAV(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, err
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("wav: %s is not a RIFF/WAVE file", path)
	}

	// Walk chunks; fmt must precede data.
	var (
		sampleRate int
		channels   int
		bits       int
		samples    []float64
	)
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkLen > len(data) {
			return Clip{}, fmt.Errorf("wav: truncated chunk %q in %s", chunkID, path)
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return Clip{}, fmt.Errorf("wav: short fmt chunk in %s", path)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if format != 1 || channels != 1 || bits != 16 {
				return Clip{}, fmt.Errorf("wav: %s is not 16-bit PCM mono", path)
			}
		case "data":
			if sampleRate == 0 {
				return Clip{}, fmt.Errorf("wav: data chunk before fmt in %s", path)
			}
			count := chunkLen / 2
			samples = make([]float64, count)
			for i := 0; i < count; i++ {
				raw := int16(binary.LittleEndian.Uint16(data[body+i*2 : body+i*2+2]))
				samples[i] = float64(raw) / 32768.0
			}
		}
		offset = body + chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}
	if samples == nil {
		return Clip{}, fmt.Errorf("wav: no data chunk in %s", path)
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

func floatToPCM16(sample float64) int16 {
	scaled := sample * 32767
	if scaled > 32767 {
		scaled = 32767
	}
	if scaled < -32768 {
		scaled = -32768
	}
	return int16(math.Round(scaled))
}
