package speech

import (
	"bytes"
	"encoding/binary"
)

const bitsPerSample = 16

// encodeWAV 为 16 位小端 PCM 加上 RIFF/WAVE 头。
func encodeWAV(pcm []byte, rate, channels int) []byte {
	blockAlign := channels * bitsPerSample / 8
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func pcmDurationMillis(size, rate, channels int) int64 {
	bytesPerSecond := rate * channels * bitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return int64(size) * 1000 / int64(bytesPerSecond)
}
