package health

// WeatherReading 天气读数及对应的健康建议。
type WeatherReading struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"` // 摄氏度
	Condition   string  `json:"condition"`
	WindSpeed   float64 `json:"windSpeed"` // km/h
	Humidity    float64 `json:"humidity"`  // 百分比
	Advice      string  `json:"advice"`
}
