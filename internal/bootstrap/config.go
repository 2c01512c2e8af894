package bootstrap

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string
	APIKey     string

	SampleRate      int
	Channels        int
	SegmentBytes    int
	SegmentDelay    time.Duration
	HeartbeatPeriod time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		APIKey:     getEnv("API_KEY", ""),

		SampleRate:      getEnvInt("SAMPLE_RATE", 24000),
		Channels:        getEnvInt("CHANNELS", 1),
		SegmentBytes:    getEnvInt("SEGMENT_BYTES", 4096),
		SegmentDelay:    time.Duration(getEnvInt("SEGMENT_DELAY_MS", 20)) * time.Millisecond,
		HeartbeatPeriod: time.Duration(getEnvInt("HEARTBEAT_SECONDS", 15)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
