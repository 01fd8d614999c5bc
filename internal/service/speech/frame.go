package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎 TTS 二进制帧：4 字节头 + 可选序号/事件 + 4 字节长度 + payload。
const frameVersion = 0b0001

type frameType uint8

const (
	frameClientRequest frameType = 0b0001
	frameServerFull    frameType = 0b1001
	frameServerAudio   frameType = 0b1011
	frameServerError   frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence   frameFlags = 0b0000
	flagSequence     frameFlags = 0b0001
	flagLastNoSeq    frameFlags = 0b0010
	flagLastSequence frameFlags = 0b0011
	flagEvent        frameFlags = 0b0100
)

const (
	serializationJSON uint8 = 0b0001
	compressionNone   uint8 = 0b0000
	compressionGzip   uint8 = 0b0001
)

// 服务端事件编号。
const (
	eventStartConnection    int32 = 1
	eventFinishConnection   int32 = 2
	eventConnectionStarted  int32 = 50
	eventConnectionFailed   int32 = 51
	eventConnectionFinished int32 = 52
	eventSessionFinished    int32 = 152
)

type frame struct {
	Type        frameType
	Flags       frameFlags
	Compression uint8
	Sequence    int32
	Event       int32
	SessionID   string
	ConnectID   string
	ErrorCode   uint32
	Payload     []byte
}

// encodeRequest 编码一个不压缩的 JSON 请求帧。
func encodeRequest(payload []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(payload)))
	buf.WriteByte(frameVersion<<4 | 0b0001)
	buf.WriteByte(byte(frameClientRequest)<<4 | byte(flagNoSequence))
	buf.WriteByte(serializationJSON<<4 | compressionNone)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	if version := head[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported frame version %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	f := &frame{
		Type:        frameType(head[1] >> 4),
		Flags:       frameFlags(head[1] & 0x0F),
		Compression: head[2] & 0x0F,
	}

	switch f.Flags & 0b0011 {
	case flagSequence, flagLastSequence:
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
	}

	if f.Flags&flagEvent == flagEvent {
		if err := binary.Read(r, binary.BigEndian, &f.Event); err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		if !eventIsConnectionScoped(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
			f.SessionID = id
		}
		if eventCarriesConnectID(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
			f.ConnectID = id
		}
	}

	if f.Type == frameServerError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload (%d bytes): %w", size, err)
		}
	}
	return f, nil
}

// Body 返回解压后的 payload。
func (f *frame) Body() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("open gzip payload: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported compression %d", f.Compression)
	}
}

func (f *frame) last() bool {
	switch f.Flags & 0b0011 {
	case flagLastNoSeq, flagLastSequence:
		return true
	}
	return f.Flags&flagEvent == flagEvent && f.Event == eventSessionFinished
}

func readSized(r io.Reader) (string, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func eventIsConnectionScoped(event int32) bool {
	switch event {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventCarriesConnectID(event int32) bool {
	switch event {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}
