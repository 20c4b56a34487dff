package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port    string
	DBDSN   string
	LogFile string

	// Stock-changed pub/sub; empty RedisAddr disables the notifier.
	RedisAddr    string
	RedisDB      int
	StockChannel string
}

func Load() Config {
	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		DBDSN:        getEnv("DB_DSN", "shopcore.db"), // sqlite file in project root
		LogFile:      getEnv("LOG_FILE", "./shopcore.log"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisDB:      0,
		StockChannel: getEnv("STOCK_EVENT_CHANNEL", "shopcore:stock_events"),
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("[config] invalid REDIS_DB %q: %v", v, err)
		}
		cfg.RedisDB = n
	}

	log.Printf("[config] PORT=%s DB_DSN=%s REDIS_ADDR=%s LOG_FILE=%s",
		cfg.Port, cfg.DBDSN, cfg.RedisAddr, cfg.LogFile)
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
