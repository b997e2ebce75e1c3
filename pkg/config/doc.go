// Package config loads typed configuration from environment variables.
//
// Each package in this module declares its own Config struct with
// github.com/caarlos0/env tags (pg.Config, redis.Config, renewal.Config, ...).
// Load parses one of those structs, caching the result per type so repeated
// calls are cheap and consistent. A .env file in the working directory is
// picked up automatically via github.com/joho/godotenv; LoadEnv reads extra
// files explicitly.
//
//	type AppConfig struct {
//		Env      string `env:"APP_ENV" envDefault:"development"`
//		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
//
//	var cfg AppConfig
//	config.MustLoad(&cfg)
package config
