package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/model/health"
)

// ErrLocationRequired 未提供地点。
var ErrLocationRequired = errors.New("location is required")

// AdviceUnavailable 没有可用建议时展示的文本。
const AdviceUnavailable = "AI health advice is temporarily unavailable."

// fallbackTTL bounds how long a reading carrying AdviceUnavailable stays cached.
const fallbackTTL = time.Minute

// Advisor 根据天气生成一句健康建议。
type Advisor interface {
	Advice(ctx context.Context, reading health.WeatherReading) (string, error)
}

// Service combines a provider, an advisor and a cache.
type Service struct {
	provider Provider
	advisor  Advisor
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
}

func NewService(provider Provider, advisor Advisor, cache Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, advisor: advisor, cache: cache, ttl: ttl, logger: logger.Named("weather")}
}

func cacheKey(location string) string {
	return "weather:v1:" + strings.ToLower(location)
}

// Get 返回带建议的天气读数。缓存故障只记录日志。
func (s *Service) Get(ctx context.Context, location string) (health.WeatherReading, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return health.WeatherReading{}, ErrLocationRequired
	}

	key := cacheKey(location)
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("weather cache read failed", zap.String("location", location), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	reading, err := s.provider.Current(ctx, location)
	if err != nil {
		return health.WeatherReading{}, fmt.Errorf("current weather for %s: %w", location, err)
	}
	reading.Location = location
	ttl := s.ttl
	reading.Advice = AdviceUnavailable
	if s.advisor != nil {
		if advice, err := s.advisor.Advice(ctx, reading); err != nil {
			s.logger.Warn("weather advice unavailable", zap.String("location", location), zap.Error(err))
			ttl = min(ttl, fallbackTTL)
		} else {
			reading.Advice = advice
		}
	}

	if err := s.cache.Set(ctx, key, reading, ttl); err != nil {
		s.logger.Warn("weather cache write failed", zap.String("location", location), zap.Error(err))
	}
	return reading, nil
}
