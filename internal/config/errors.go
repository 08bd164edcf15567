package config

import (
	"errors"
)

// Ошибки пакета для проверки через errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
