package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/model/speech"
)

func newTTSServer(t *testing.T, handle func(resource string, req volcRequest, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// 请求帧：4 字节头 + 4 字节长度 + JSON
		var req volcRequest
		if err := json.Unmarshal(data[8:], &req); err != nil {
			return
		}
		handle(r.Header.Get("X-Api-Resource-Id"), req, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSynth(endpoint string) *VolcengineSynthesizer {
	s := NewVolcengineSynthesizer(config.SpeechConfig{
		Provider:    config.SpeechVolcengine,
		AppID:       "app",
		AccessToken: "token",
		Language:    "en-US",
		Speed:       1,
		Volume:      1,
	}, nil)
	s.endpoint = endpoint
	return s
}

func TestVolcengineSynthesize(t *testing.T) {
	var got volcRequest
	endpoint := newTTSServer(t, func(resource string, req volcRequest, conn *websocket.Conn) {
		got = req
		_ = conn.WriteMessage(websocket.BinaryMessage, serverFrame(frameServerAudio, flagSequence, compressionNone, 1, 0, []byte("abc")))
		final := []byte(`{"reqid":"r-1","code":0,"addition":{"duration":"1200"}}`)
		_ = conn.WriteMessage(websocket.BinaryMessage, serverFrame(frameServerFull, flagLastSequence, compressionNone, -2, 0, final))
	})

	resp, err := testSynth(endpoint).Synthesize(context.Background(), &speech.TTSRequest{SessionID: "s-1", Text: "Drink some water."})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), resp.AudioData)
	assert.Equal(t, "r-1", resp.RequestID)
	assert.Equal(t, int64(1200), resp.Duration)
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, "s-1", resp.SessionID)

	assert.Equal(t, defaultVolcVoice, got.ReqParams.Speaker)
	assert.Equal(t, "en-US", got.ReqParams.Language)
	assert.Zero(t, got.ReqParams.AudioParams.SpeedRatio)
}

func TestVolcengineFallsBackOnResourceMismatch(t *testing.T) {
	var attempts atomic.Int32
	endpoint := newTTSServer(t, func(resource string, req volcRequest, conn *websocket.Conn) {
		attempts.Add(1)
		if resource == resourceSeed {
			msg := []byte(`{"error":"resource ID is mismatched with speaker related resource"}`)
			_ = conn.WriteMessage(websocket.BinaryMessage, serverFrame(frameServerError, flagNoSequence, compressionNone, 0, 0, msg))
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, serverFrame(frameServerAudio, flagLastNoSeq, compressionNone, 0, 0, []byte("ok")))
	})

	resp, err := testSynth(endpoint).Synthesize(context.Background(), &speech.TTSRequest{Text: "hello", Voice: "companion"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.AudioData)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestVolcengineAPIError(t *testing.T) {
	endpoint := newTTSServer(t, func(resource string, req volcRequest, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, serverFrame(frameServerFull, flagNoSequence, compressionNone, 0, 0, []byte(`{"code":4001,"message":"bad text"}`)))
	})

	_, err := testSynth(endpoint).Synthesize(context.Background(), &speech.TTSRequest{Text: "hello"})
	assert.ErrorContains(t, err, "4001")
}

func TestVolcengineRejectsEmptyTextAndMissingCredentials(t *testing.T) {
	s := NewVolcengineSynthesizer(config.SpeechConfig{}, nil)

	_, err := s.Synthesize(context.Background(), &speech.TTSRequest{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = s.Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestResourceCandidates(t *testing.T) {
	assert.Equal(t, []string{resourceMega}, resourceCandidates("S_clone"))
	assert.Equal(t, []string{resourceSeed, resourceStandard}, resourceCandidates("en_female_amy_jupiter_bigtts"))
	assert.Equal(t, []string{resourceStandard, resourceSeed}, resourceCandidates("en_male_plain"))
}

func TestSpeakerCandidates(t *testing.T) {
	assert.Equal(t, []string{defaultVolcVoice}, speakerCandidates("companion", defaultVolcVoice))
	assert.Equal(t, []string{"Voice_A"}, speakerCandidates("Voice_A", "voice_a"))
	assert.Equal(t, []string{"x", defaultVolcVoice}, speakerCandidates("x", defaultVolcVoice))
	assert.Empty(t, speakerCandidates("", ""))
}
