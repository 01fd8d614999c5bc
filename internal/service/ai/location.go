package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/healthwise/companion/internal/metrics"
)

// LocationFlow resolves coordinates to a city name.
type LocationFlow struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func NewLocationFlow(ctx context.Context, chatModel model.BaseChatModel) (*LocationFlow, error) {
	runnable, err := compileChain(ctx, chatModel, "location")
	if err != nil {
		return nil, err
	}
	return &LocationFlow{chain: runnable}, nil
}

// ValidateCoordinates 校验经纬度范围。
func ValidateCoordinates(lat, lon float64) map[string]string {
	fields := map[string]string{}
	if lat < -90 || lat > 90 {
		fields["latitude"] = "Latitude must be between -90 and 90."
	}
	if lon < -180 || lon > 180 {
		fields["longitude"] = "Longitude must be between -180 and 180."
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// City 返回坐标所在城市。
func (f *LocationFlow) City(ctx context.Context, lat, lon float64) (city string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFlow("location", start, err) }()

	if fields := ValidateCoordinates(lat, lon); fields != nil {
		return "", fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	msg, err := f.chain.Invoke(ctx, map[string]any{
		"system": locationSystemPrompt,
		"query":  fmt.Sprintf(locationUserPrompt, lat, lon),
	})
	if err != nil {
		return "", fmt.Errorf("%w: location: %v", ErrModelFailure, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: location returned no message", ErrModelFailure)
	}

	city = strings.TrimSpace(strings.SplitN(strings.TrimSpace(msg.Content), "\n", 2)[0])
	city = strings.Trim(city, "\"'.` ")
	if city == "" {
		return "", fmt.Errorf("%w: empty city", ErrModelFailure)
	}
	return city, nil
}
