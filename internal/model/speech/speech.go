package speech

import (
	"encoding/base64"
	"time"
)

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // 声音类型
	Speed     float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"`   // 音量 0.0-1.0
	Format    string  `json:"format"`   // mp3, wav, etc.
	Language  string  `json:"language"` // en-US, zh-CN, etc.
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration"` // milliseconds
	Format    string    `json:"format"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MimeType maps the audio format to its content type.
func (r TTSResponse) MimeType() string {
	switch r.Format {
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	case "ogg_opus":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// DataURI 返回可以直接交给播放器的 data URI，无音频时为空。
func (r TTSResponse) DataURI() string {
	if len(r.AudioData) == 0 {
		return ""
	}
	return "data:" + r.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(r.AudioData)
}
