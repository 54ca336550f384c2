package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

var (
	// ErrServiceNotFound is returned when a service id does not exist.
	ErrServiceNotFound = errors.New("service not found")
	// ErrInvalidService wraps every validation failure of a service definition.
	ErrInvalidService = errors.New("invalid service")
	// ErrInvalidSetting is returned when a setting value is rejected.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Kind selects the probe used for a service.
type Kind string

const (
	KindHTTP Kind = "http"
	KindTCP  Kind = "tcp"
	KindSSL  Kind = "ssl"
)

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHTTP, KindTCP, KindSSL:
		return true
	}
	return false
}

// DefaultThreshold returns the warning threshold used when a service leaves it unset.
// HTTP and TCP thresholds are milliseconds, SSL thresholds are days.
func (k Kind) DefaultThreshold() int {
	switch k {
	case KindHTTP:
		return 1000
	case KindTCP:
		return 500
	case KindSSL:
		return 30
	}
	return 0
}

// Status is the health classification of a single probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusUnhealthy Status = "unhealthy"
)

// Statuses lists every status from least to most severe. The index of a status
// is its severity.
var Statuses = []Status{StatusHealthy, StatusWarning, StatusUnhealthy}

// Severity orders statuses so that the worst one wins: unhealthy > warning > healthy.
// Unknown statuses rank as healthy.
func (s Status) Severity() int {
	for severity, status := range Statuses {
		if status == s {
			return severity
		}
	}
	return 0
}

// StatusForSeverity is the inverse of Severity. Out of range values clamp to the
// nearest status.
func StatusForSeverity(severity int) Status {
	return Statuses[max(0, min(severity, len(Statuses)-1))]
}

// OverallStatus is the composite status across all services.
type OverallStatus string

const (
	OverallHealthy   OverallStatus = "healthy"
	OverallDegraded  OverallStatus = "degraded"
	OverallUnhealthy OverallStatus = "unhealthy"
	OverallUnknown   OverallStatus = "unknown"
)

// Service represents an endpoint being monitored
type Service struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"not null" json:"name" yaml:"name" validate:"required,max=120"`
	Kind             Kind      `gorm:"column:type;not null;default:http" json:"type" yaml:"type" validate:"required,oneof=http tcp ssl"`
	URL              string    `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	VisitURL         string    `json:"visit_url,omitempty" yaml:"visitUrl,omitempty" validate:"omitempty,url"`
	Host             string    `json:"host,omitempty" yaml:"host,omitempty" validate:"omitempty,hostname_rfc1123|ip"`
	Port             int       `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Icon             string    `gorm:"default:🔧" json:"icon" yaml:"icon,omitempty"`
	Category         string    `gorm:"not null;index" json:"category" yaml:"category" validate:"required,max=60"`
	TimeoutSeconds   int       `gorm:"column:timeout;default:5" json:"timeout" yaml:"timeout,omitempty" validate:"min=0,max=300"`
	IntervalSeconds  int       `gorm:"column:interval;default:30" json:"interval" yaml:"interval,omitempty" validate:"min=0"`
	ExpectedStatus   int       `gorm:"default:200" json:"expected_status" yaml:"expectedStatus,omitempty" validate:"omitempty,min=100,max=599"`
	WarningThreshold *int      `json:"warning_threshold,omitempty" yaml:"warningThreshold,omitempty" validate:"omitempty,min=0"`
	ConfigHash       string    `gorm:"index" json:"config_hash,omitempty" yaml:"-"` // set for services managed by the seed file
	CreatedAt        time.Time `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"-"`
}

// TableName pins the table name used by gorm.
func (Service) TableName() string {
	return "services"
}

// Threshold resolves the effective warning threshold, falling back to the kind default.
func (s Service) Threshold() int {
	if s.WarningThreshold != nil {
		return *s.WarningThreshold
	}
	return s.Kind.DefaultThreshold()
}

// Timeout returns the probe timeout as a duration.
func (s Service) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Interval returns the check interval as a duration.
func (s Service) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// SSLDetails carries certificate data read by the SSL probe.
type SSLDetails struct {
	Issuer          string    `json:"issuer"`
	Subject         string    `json:"subject"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidTo         time.Time `json:"validTo"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
}

// ProbeResult is the outcome of one probe. Values are never mutated once produced.
type ProbeResult struct {
	Status         Status      `json:"status"`
	ResponseTimeMs int64       `json:"response_time"`
	StatusCode     *int        `json:"status_code,omitempty"`
	Error          string      `json:"error,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	SSL            *SSLDetails `json:"ssl,omitempty"`
}

// HistoryExtra holds kind-specific data stored alongside a history row.
type HistoryExtra struct {
	SSL *SSLDetails `json:"ssl,omitempty"`
}

// HistoryEntry stores a persisted probe result
type HistoryEntry struct {
	ID             int64                            `gorm:"primaryKey" json:"id"`
	ServiceID      int64                            `gorm:"not null;index:idx_history_service_checked,priority:1" json:"service_id"`
	Status         Status                           `gorm:"not null" json:"status"`
	ResponseTimeMs int64                            `gorm:"column:response_time;default:0" json:"response_time"`
	StatusCode     *int                             `json:"status_code,omitempty"`
	ErrorMessage   string                           `json:"error_message,omitempty"`
	CheckedAt      int64                            `gorm:"not null;index:idx_history_service_checked,priority:2;index:idx_history_checked" json:"checked_at"` // unix milliseconds
	AdditionalData datatypes.JSONType[HistoryExtra] `json:"additional_data"`
}

// TableName pins the table name used by gorm.
func (HistoryEntry) TableName() string {
	return "service_history"
}

// Time returns CheckedAt as a UTC time.
func (h HistoryEntry) Time() time.Time {
	return time.UnixMilli(h.CheckedAt).UTC()
}

// ServiceHistoryEntry is a history row joined with its service, as returned by the
// all-services history query.
type ServiceHistoryEntry struct {
	HistoryEntry
	ServiceName string `json:"service_name"`
	ServiceType Kind   `json:"service_type"`
}

// Setting is a process-wide key/value configuration row.
type Setting struct {
	Key         string    `gorm:"primaryKey" json:"key"`
	Value       string    `gorm:"not null" json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName pins the table name used by gorm.
func (Setting) TableName() string {
	return "settings"
}

// BucketPoint is one downsampled chart point.
type BucketPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	ResponseTimeMs     int64     `json:"response_time"`
	Status             Status    `json:"status"`
	BucketSizeMinutes  int       `json:"bucket_size_minutes"`
	DataPointsAveraged int       `json:"data_points_averaged"`
}

// OverallHealth is the aggregate health across all probed services.
type OverallHealth struct {
	Status     OverallStatus `json:"status"`
	Percentage int           `json:"percentage"`
	Total      int           `json:"total"`
	Healthy    int           `json:"healthy"`
	Warning    int           `json:"warning"`
	Unhealthy  int           `json:"unhealthy"`
}

// ServiceView is a service enriched with its live status and rolling uptime.
type ServiceView struct {
	Service
	*ProbeResult
	Uptime int `json:"uptime"`
}
