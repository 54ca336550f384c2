package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"healthdeck/internal/models"
)

// SeedFile is the root of the services YAML file.
type SeedFile struct {
	Services []models.Service `yaml:"services"`
}

// LoadSeedServices reads the services file and returns normalized services with
// their ConfigHash set. A missing file yields no services and no error.
func LoadSeedServices(fs afero.Fs, path string) ([]models.Service, error) {
	if path == "" {
		return nil, nil
	}

	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		log.Debug().Str("config_path", path).Msg("[Config] Services file not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	services := make([]models.Service, 0, len(file.Services))
	for _, svc := range file.Services {
		svc.Normalize()
		if err := svc.Validate(0); err != nil {
			log.Warn().Err(err).Str("name", svc.Name).Msg("[Config] Skipping invalid service")
			continue
		}
		svc.ConfigHash = ConfigHash(svc)
		services = append(services, svc)
	}

	log.Info().Int("count", len(services)).Str("config_path", path).Msg("[Config] Loaded services")
	return services, nil
}

// ConfigHash is a sha256 over the user-editable fields of a service. It changes
// whenever the YAML definition of the service changes.
func ConfigHash(svc models.Service) string {
	threshold := -1
	if svc.WarningThreshold != nil {
		threshold = *svc.WarningThreshold
	}
	configStr := fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s|%s|%d|%d|%d|%d",
		svc.Name,
		svc.Kind,
		svc.URL,
		svc.Host,
		svc.Port,
		svc.VisitURL,
		svc.Icon,
		svc.Category,
		svc.TimeoutSeconds,
		svc.IntervalSeconds,
		svc.ExpectedStatus,
		threshold,
	)

	hash := sha256.Sum256([]byte(configStr))
	return hex.EncodeToString(hash[:])
}

// DefaultServices are seeded when the database is empty and no services file exists.
func DefaultServices() []models.Service {
	threshold := 1000
	return []models.Service{
		{
			Name:             "Google",
			Kind:             models.KindHTTP,
			URL:              "https://www.google.com",
			Icon:             "🌐",
			Category:         "network",
			TimeoutSeconds:   5,
			IntervalSeconds:  30,
			ExpectedStatus:   200,
			WarningThreshold: &threshold,
		},
	}
}
