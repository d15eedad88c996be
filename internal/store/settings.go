package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
)

const platformSettingsKey = "platform"

// Settings reads the platform settings row. The store never writes it.
func (s *Postgres) Settings(ctx context.Context) (domain.Settings, error) {
	var raw []byte
	err := s.Db.QueryRow(ctx, "SELECT value FROM settings WHERE key = $1", platformSettingsKey).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return domain.Settings{}, fmt.Errorf("%w: %q row missing", domain.ErrInvalidSettings, platformSettingsKey)
		}
		return domain.Settings{}, err
	}

	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("%w: %v", domain.ErrInvalidSettings, err)
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}
