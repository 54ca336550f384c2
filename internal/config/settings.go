package config

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
)

// Setting keys stored in the settings table.
const (
	SettingRetentionDays   = "history_retention_days"
	SettingCleanupInterval = "cleanup_interval_hours"
	SettingMaxHistory      = "max_history_entries_per_service"
	SettingMinInterval     = "min_check_interval"
)

// Defaults applied when a setting row is missing or unparsable.
const (
	DefaultRetentionDays   = 30
	DefaultCleanupInterval = 24
	DefaultMaxHistory      = 10000
	DefaultMinInterval     = 10
)

// DefaultSettings are inserted on first migration.
func DefaultSettings() []models.Setting {
	return []models.Setting{
		{Key: SettingRetentionDays, Value: strconv.Itoa(DefaultRetentionDays), Description: "Number of days to keep service history data"},
		{Key: SettingCleanupInterval, Value: strconv.Itoa(DefaultCleanupInterval), Description: "How often to clean up old history data (in hours)"},
		{Key: SettingMaxHistory, Value: strconv.Itoa(DefaultMaxHistory), Description: "Maximum number of history entries per service before cleanup"},
		{Key: SettingMinInterval, Value: strconv.Itoa(DefaultMinInterval), Description: "Minimum allowed check interval in seconds"},
	}
}

// ParsePositiveInt parses a setting value, falling back to def when the value is
// not a positive integer.
func ParsePositiveInt(key, value string, def int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		if value != "" {
			log.Warn().Str("key", key).Str("value", value).Int("default", def).Msg("[Settings] Invalid value, using default")
		}
		return def
	}
	return n
}
