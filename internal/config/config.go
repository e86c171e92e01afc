package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TimeZone              string
	WindowDays            int
	SegmentWindowDays     int
	OverviewTTLSeconds    int
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	windowDays, err := strconv.Atoi(getEnv("ANALYTICS_WINDOW_DAYS", "30"))
	if err != nil || windowDays < 1 {
		windowDays = 30
	}
	segmentDays, err := strconv.Atoi(getEnv("SEGMENT_WINDOW_DAYS", "90"))
	if err != nil || segmentDays < 1 {
		segmentDays = 90
	}
	overviewTTL, err := strconv.Atoi(getEnv("OVERVIEW_TTL_SECONDS", "60"))
	if err != nil || overviewTTL < 1 {
		overviewTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TimeZone:              getEnv("TIME_ZONE", "Europe/Paris"),
		WindowDays:            windowDays,
		SegmentWindowDays:     segmentDays,
		OverviewTTLSeconds:    overviewTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
