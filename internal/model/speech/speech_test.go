package speech

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataURI(t *testing.T) {
	assert.Empty(t, TTSResponse{Format: "mp3"}.DataURI())

	uri := TTSResponse{Format: "wav", AudioData: []byte("RIFF")}.DataURI()
	assert.True(t, strings.HasPrefix(uri, "data:audio/wav;base64,"))
	assert.Equal(t, "data:audio/mpeg;base64,UklGRg==", TTSResponse{AudioData: []byte("RIFF")}.DataURI())
}
