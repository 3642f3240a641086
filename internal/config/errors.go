package config

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig    = errors.New("invalid config")
	ErrLoadConfig       = errors.New("load config failed")
	ErrSettingsNotFound = errors.New("settings file not found")
	ErrBackupNotFound   = errors.New("backup file not found")
)
