package weather

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/healthwise/companion/internal/model/health"
)

// Provider 返回某地当前的天气读数（不含建议）。
type Provider interface {
	Current(ctx context.Context, location string) (health.WeatherReading, error)
}

var conditions = []string{"Sunny", "Cloudy", "Rainy", "Windy"}

// MockProvider generates plausible readings without calling a weather API.
// Rainy is cooler (15-22 °C) than the other conditions (18-30 °C).
type MockProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockProvider 使用固定种子，便于复现。
func NewMockProvider(seed uint64) *MockProvider {
	return &MockProvider{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (p *MockProvider) Current(_ context.Context, location string) (health.WeatherReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 同一地点在同一提供者内有稳定的差异。
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(location))))
	offset := int(h.Sum64() % 3)

	condition := conditions[(p.rng.IntN(len(conditions))+offset)%len(conditions)]
	var temperature int
	if condition == "Rainy" {
		temperature = p.rng.IntN(8) + 15
	} else {
		temperature = p.rng.IntN(13) + 18
	}

	return health.WeatherReading{
		Location:    location,
		Temperature: float64(temperature),
		Condition:   condition,
		WindSpeed:   float64(p.rng.IntN(15) + 5),
		Humidity:    float64(p.rng.IntN(40) + 50),
	}, nil
}
