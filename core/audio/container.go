package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	wavHeaderSize = 44
	wavFormatPCM  = 1
	wavBitDepth   = 16
)

// EncodeContainer wraps PCM16 samples in a RIFF/WAVE container.
func EncodeContainer(pcm []int16, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataLen := uint32(len(pcm) * 2)
	blockAlign := uint16(channels * wavBitDepth / 8)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+int(dataLen)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate)*uint32(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavBitDepth))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(PCM16ToBytes(pcm))
	return buf.Bytes()
}

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// DecodeContainer parses a RIFF/WAVE container into mono PCM16 samples at
// targetSampleRate. Multi-channel audio is averaged down to one channel.
// On failure no samples are returned and the error is a [*CodecError].
func DecodeContainer(data []byte, targetSampleRate int) ([]int16, error) {
	if targetSampleRate <= 0 {
		return nil, unsupported("target sample rate %d", targetSampleRate)
	}
	if len(data) < 12 {
		return nil, malformed("container is %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, malformed("missing RIFF/WAVE signature")
	}

	var format *wavFormat
	var payload []byte
	for pos := 12; pos < len(data); {
		if len(data)-pos < 8 {
			return nil, malformed("truncated chunk header at offset %d", pos)
		}
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || size > len(data)-body {
			return nil, malformed("chunk %q overruns container", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, malformed("fmt chunk is %d bytes", size)
			}
			chunk := data[body : body+size]
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(chunk[0:2]),
				channels:      binary.LittleEndian.Uint16(chunk[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(chunk[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(chunk[14:16]),
			}
		case "data":
			if format == nil {
				return nil, malformed("data chunk before fmt chunk")
			}
			payload = data[body : body+size]
		}
		if payload != nil {
			break
		}

		// chunks are word aligned
		pos = body + size + size%2
	}

	if format == nil {
		return nil, malformed("missing fmt chunk")
	}
	if payload == nil {
		return nil, malformed("missing data chunk")
	}
	if format.audioFormat != wavFormatPCM {
		return nil, unsupported("format tag %d", format.audioFormat)
	}
	if format.bitsPerSample != wavBitDepth {
		return nil, unsupported("%d-bit samples", format.bitsPerSample)
	}
	if format.channels == 0 || format.sampleRate == 0 {
		return nil, unsupported("%d channels at %d Hz", format.channels, format.sampleRate)
	}

	frameBytes := int(format.channels) * 2
	payload = payload[:len(payload)-len(payload)%frameBytes]
	samples, err := BytesToPCM16(payload)
	if err != nil {
		return nil, malformed("%v", err)
	}

	samples = Downmix(samples, int(format.channels))
	return Resample(samples, int(format.sampleRate), targetSampleRate), nil
}
