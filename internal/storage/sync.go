package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
)

// SyncReport counts the changes applied by SyncSeedServices.
type SyncReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Changed reports whether the sync touched any row.
func (r SyncReport) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// SyncSeedServices reconciles file-managed services (those with a ConfigHash) with
// seed. Services created through the API are never touched; a seed entry whose
// name and type match an API-created service is skipped.
func (d *DB) SyncSeedServices(ctx context.Context, seed []models.Service) (SyncReport, error) {
	var report SyncReport

	existing, err := d.ListServices(ctx)
	if err != nil {
		return report, err
	}

	byHash := make(map[string]models.Service)
	for _, svc := range existing {
		if svc.ConfigHash != "" {
			byHash[svc.ConfigHash] = svc
		}
	}

	processed := make(map[string]bool, len(seed))
	for _, svc := range seed {
		hash := svc.ConfigHash
		processed[hash] = true

		if _, ok := byHash[hash]; ok {
			log.Debug().Str("name", svc.Name).Str("hash", shortHash(hash)).Msg("[Config] Service unchanged")
			report.Unchanged++
			continue
		}

		match, found := findByNameAndKind(existing, svc)
		switch {
		case found && match.ConfigHash == "":
			log.Debug().Str("name", svc.Name).Msg("[Config] Skipping service - already exists (created via UI/API)")
			report.Skipped++
		case found:
			log.Info().Str("name", svc.Name).Str("old_hash", shortHash(match.ConfigHash)).Str("new_hash", shortHash(hash)).
				Msg("[Config] Updating service - config changed")
			svc.ID = match.ID
			if _, err := d.UpdateService(ctx, svc); err != nil {
				log.Error().Err(err).Str("name", svc.Name).Msg("[Config] Failed to update service")
				continue
			}
			processed[match.ConfigHash] = true
			report.Updated++
		default:
			if _, err := d.CreateService(ctx, svc); err != nil {
				log.Error().Err(err).Str("name", svc.Name).Msg("[Config] Failed to create service")
				continue
			}
			log.Info().Str("name", svc.Name).Str("hash", shortHash(hash)).Msg("[Config] Created service")
			report.Created++
		}
	}

	// Remove file-managed services that are no longer in the file.
	for hash, svc := range byHash {
		if processed[hash] {
			continue
		}
		if err := d.DeleteService(ctx, svc.ID); err != nil {
			log.Error().Err(err).Str("name", svc.Name).Msg("[Config] Failed to delete service")
			continue
		}
		log.Info().Str("name", svc.Name).Str("hash", shortHash(hash)).Msg("[Config] Removed service - no longer in services file")
		report.Deleted++
	}

	log.Info().Int("created", report.Created).Int("updated", report.Updated).Int("deleted", report.Deleted).
		Msg("[Config] Services file synchronized")
	return report, nil
}

// SeedDefaults inserts services when the table is empty. It returns how many were added.
func (d *DB) SeedDefaults(ctx context.Context, services []models.Service) (int, error) {
	count, err := d.CountServices(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	log.Info().Msg("[Config] Database is empty, seeding default services")
	for _, svc := range services {
		if _, err := d.CreateService(ctx, svc); err != nil {
			return 0, fmt.Errorf("seed default service %s: %w", svc.Name, err)
		}
		log.Info().Str("name", svc.Name).Msg("[Config] Created default service")
	}
	return len(services), nil
}

func findByNameAndKind(services []models.Service, target models.Service) (models.Service, bool) {
	for _, svc := range services {
		if svc.Name == target.Name && svc.Kind == target.Kind {
			return svc, true
		}
	}
	return models.Service{}, false
}
