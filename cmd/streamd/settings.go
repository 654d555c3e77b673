package main

import "time"

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/stream"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`

	ContextBrokerURL string `env:"CONTEXT_BROKER_URL,default=http://localhost:1026"`
	MongoDBURI       string `env:"MONGODB_URI"`

	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT,default=15s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=10s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT,default=30s"`

	CamerasPollInterval    time.Duration `env:"CAMERAS_POLL_INTERVAL"`
	WeatherPollInterval    time.Duration `env:"WEATHER_POLL_INTERVAL"`
	AirQualityPollInterval time.Duration `env:"AIR_QUALITY_POLL_INTERVAL"`
	AccidentsPollInterval  time.Duration `env:"ACCIDENTS_POLL_INTERVAL"`
	PatternsPollInterval   time.Duration `env:"PATTERNS_POLL_INTERVAL"`
}
