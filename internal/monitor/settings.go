package monitor

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/config"
)

// intSetting reads a positive integer setting, falling back to def on any failure.
func intSetting(ctx context.Context, store Store, key string, def int) int {
	value, err := store.GetSetting(ctx, key, strconv.Itoa(def))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Int("default", def).Msg("[Settings] Failed to read setting, using default")
		return def
	}
	return config.ParsePositiveInt(key, value, def)
}
