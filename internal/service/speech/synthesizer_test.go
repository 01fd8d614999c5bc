package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/model/speech"
)

type stubSynth struct{ err error }

func (s stubSynth) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &speech.TTSResponse{SessionID: req.SessionID, AudioData: []byte("RIFF"), Format: "wav"}, nil
}

func failureCount(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "healthwise_speech_failures_total" && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestInstrumentedCountsEachFailureOnce(t *testing.T) {
	req := &speech.TTSRequest{SessionID: "s-1", Text: "hello"}
	before := failureCount(t)

	_, err := instrumented{next: stubSynth{}}.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, before, failureCount(t))

	_, err = instrumented{next: stubSynth{err: errors.New("tts down")}}.Synthesize(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, before+1, failureCount(t))
}

func TestNewSynthesizerDisabled(t *testing.T) {
	synth, err := NewSynthesizer(context.Background(), config.SpeechConfig{Provider: config.SpeechNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, synth)
}
