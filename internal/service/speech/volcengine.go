package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/model/speech"
)

const (
	volcengineEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	defaultVolcVoice   = "en_female_amy_jupiter_bigtts"

	resourceStandard = "volc.service_type.10029"
	resourceMega     = "volc.megatts.default"
	resourceSeed     = "seed-tts-2.0"
)

// VolcengineSynthesizer 火山引擎单向流式 TTS 客户端。
type VolcengineSynthesizer struct {
	cfg      config.SpeechConfig
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

func NewVolcengineSynthesizer(cfg config.SpeechConfig, logger *zap.Logger) *VolcengineSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineSynthesizer{
		cfg:      cfg,
		endpoint: volcengineEndpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger:   logger.Named("tts.volcengine"),
	}
}

type volcRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string          `json:"speaker"`
		Text        string          `json:"text"`
		AudioParams volcAudioParams `json:"audio_params"`
		Additions   string          `json:"additions,omitempty"`
		Language    string          `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type volcServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize 依次尝试候选音色与资源 ID，资源不匹配时换下一个。
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if s.cfg.AppID == "" || s.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: volcengine app id or access token missing", ErrDisabled)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	format := strings.TrimSpace(req.Format)
	if format == "" || format == "wav" {
		format = "mp3"
	}

	fallback := s.cfg.Voice
	if fallback == "" {
		fallback = defaultVolcVoice
	}
	speakers := speakerCandidates(req.Voice, fallback)

	var mismatch error
	for _, speaker := range speakers {
		for _, resource := range resourceCandidates(speaker) {
			resp, err := s.attempt(ctx, req, speaker, resource, format)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			s.logger.Debug("resource mismatch", zap.String("speaker", speaker), zap.String("resource", resource))
			mismatch = err
		}
	}
	if mismatch != nil {
		return nil, mismatch
	}
	return nil, fmt.Errorf("no usable speaker among %v", speakers)
}

func (s *VolcengineSynthesizer) attempt(ctx context.Context, req *speech.TTSRequest, speaker, resource, format string) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", s.cfg.AppID)
	header.Set("X-Api-Access-Key", s.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial volcengine tts: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		s.logger.Debug("tts connected", zap.String("logid", resp.Header.Get("X-Tt-Logid")), zap.String("resource", resource))
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = connectID
	}
	payload, err := json.Marshal(s.buildRequest(req, uid, speaker, format))
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeRequest(payload)); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return nil, err
		}
		body, err := f.Body()
		if err != nil {
			return nil, err
		}

		switch f.Type {
		case frameServerError:
			return nil, fmt.Errorf("tts error %d: %s", f.ErrorCode, string(body))
		case frameServerAudio:
			audio.Write(body)
		case frameServerFull:
			var msg volcServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					s.logger.Warn("unreadable tts payload", zap.Error(err))
				}
			}
			if msg.Code != 0 && msg.Code != 3000 {
				return nil, fmt.Errorf("tts api error %d: %s", msg.Code, msg.Message)
			}
			if msg.ReqID != "" {
				reqID = msg.ReqID
			}
			if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
				duration = ms
			}
			if msg.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					return nil, fmt.Errorf("decode audio chunk: %w", err)
				}
				audio.Write(chunk)
			}
			if msg.Sequence < 0 {
				return s.finish(&audio, req, uid, reqID, connectID, format, duration)
			}
		default:
			s.logger.Debug("ignoring tts frame", zap.Uint8("type", uint8(f.Type)))
		}

		if f.last() {
			return s.finish(&audio, req, uid, reqID, connectID, format, duration)
		}
	}
}

func (s *VolcengineSynthesizer) finish(audio *bytes.Buffer, req *speech.TTSRequest, uid, reqID, connectID, format string, duration int64) (*speech.TTSResponse, error) {
	if audio.Len() == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}
	if reqID == "" {
		reqID = connectID
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uid
	}
	return &speech.TTSResponse{
		SessionID: sessionID,
		AudioData: audio.Bytes(),
		Duration:  duration,
		Format:    format,
		RequestID: reqID,
		CreatedAt: time.Now(),
	}, nil
}

func (s *VolcengineSynthesizer) buildRequest(req *speech.TTSRequest, uid, speaker, format string) *volcRequest {
	out := &volcRequest{}
	out.User.UID = uid
	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams.Format = format
	out.ReqParams.AudioParams.SampleRate = 24000

	speed := req.Speed
	if speed <= 0 {
		speed = s.cfg.Speed
	}
	if speed > 0 && speed != 1 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}
	volume := req.Volume
	if volume <= 0 {
		volume = s.cfg.Volume
	}
	if volume > 0 && volume != 1 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = s.cfg.Language
	}
	out.ReqParams.Language = language
	out.ReqParams.Additions = `{"disable_markdown_filter":true}`
	return out
}

// resourceCandidates 根据音色名推断可用的资源 ID。
func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{resourceMega}
	}
	lower := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(lower, hint) {
			return []string{resourceSeed, resourceStandard}
		}
	}
	return []string{resourceStandard, resourceSeed}
}

var voiceAliases = map[string]string{
	"companion":  defaultVolcVoice,
	"en_default": defaultVolcVoice,
	"en_male":    "en_male_corey_emo_v2_mars_bigtts",
	"calm":       "en_female_skye_emo_v2_mars_bigtts",
}

// speakerCandidates 返回去重后的候选音色，请求音色优先。
func speakerCandidates(requested, fallback string) []string {
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if mapped, ok := voiceAliases[strings.ToLower(v)]; ok {
			v = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, v) {
				return
			}
		}
		out = append(out, v)
	}
	add(requested)
	add(fallback)
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
