package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize fills in the defaults a freshly submitted service is missing.
func (s *Service) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Host = strings.TrimSpace(s.Host)
	s.Category = strings.TrimSpace(s.Category)
	if s.Kind == "" {
		s.Kind = KindHTTP
	}
	if s.Icon == "" {
		s.Icon = "🔧"
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 5
	}
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 30
	}
	if s.ExpectedStatus == 0 {
		s.ExpectedStatus = 200
	}
	if s.WarningThreshold == nil && s.Kind.Valid() {
		threshold := s.Kind.DefaultThreshold()
		s.WarningThreshold = &threshold
	}
}

// Validate checks field constraints, the per-kind addressing scheme and the interval floor.
// Every failure wraps ErrInvalidService.
func (s Service) Validate(minInterval int) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidService, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidService, err)
	}

	switch s.Kind {
	case KindHTTP, KindSSL:
		if s.URL == "" {
			return fmt.Errorf("%w: %s services require a url", ErrInvalidService, s.Kind)
		}
		if s.Host != "" || s.Port != 0 {
			return fmt.Errorf("%w: %s services are addressed by url only", ErrInvalidService, s.Kind)
		}
		u, err := url.Parse(s.URL)
		if err != nil || u.Hostname() == "" {
			return fmt.Errorf("%w: url %q has no host", ErrInvalidService, s.URL)
		}
		if s.Kind == KindHTTP && u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: url scheme must be http or https", ErrInvalidService)
		}
	case KindTCP:
		if s.Host == "" || s.Port == 0 {
			return fmt.Errorf("%w: tcp services require host and port", ErrInvalidService)
		}
		if s.URL != "" {
			return fmt.Errorf("%w: tcp services are addressed by host and port only", ErrInvalidService)
		}
	}

	if minInterval > 0 && s.IntervalSeconds < minInterval {
		return fmt.Errorf("%w: interval %ds is below the minimum of %ds", ErrInvalidService, s.IntervalSeconds, minInterval)
	}
	return nil
}
