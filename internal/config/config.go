package config

import (
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	LoginConfig
	TimeoutConfig
}

type EnvConfig interface {
	GetAppName() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Login
	Timeouts
}

// New returns the environment backed configuration. Variables from a .env
// file in the working directory are loaded first; the process environment
// wins over the file.
func New(envFiles ...string) Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load(envFiles...)
	return mainConfig{}
}
