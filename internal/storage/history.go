package storage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"healthdeck/internal/models"
)

// Graph defaults used when callers pass non-positive values.
const (
	DefaultGraphHours     = 24
	DefaultGraphMaxPoints = 100
)

// AppendHistory persists one probe result. Rows are never updated afterwards.
func (d *DB) AppendHistory(ctx context.Context, serviceID int64, result models.ProbeResult) error {
	checkedAt := result.Timestamp
	if checkedAt.IsZero() {
		checkedAt = d.now()
	}
	entry := models.HistoryEntry{
		ServiceID:      serviceID,
		Status:         result.Status,
		ResponseTimeMs: result.ResponseTimeMs,
		StatusCode:     result.StatusCode,
		ErrorMessage:   result.Error,
		CheckedAt:      checkedAt.UnixMilli(),
		AdditionalData: datatypes.NewJSONType(models.HistoryExtra{SSL: result.SSL}),
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append history for service %d: %w", serviceID, err)
	}
	return nil
}

// QueryHistory returns the rows of one service checked within the last sinceHours,
// newest first. A non-positive limit returns every row.
func (d *DB) QueryHistory(ctx context.Context, serviceID int64, sinceHours, limit int) ([]models.HistoryEntry, error) {
	since := d.now().Add(-time.Duration(sinceHours) * time.Hour).UnixMilli()

	q := d.db.WithContext(ctx).
		Where("service_id = ? AND checked_at >= ?", serviceID, since).
		Order("checked_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	entries := make([]models.HistoryEntry, 0)
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query history for service %d: %w", serviceID, err)
	}
	return entries, nil
}

// QueryAllHistory returns recent rows across all services joined with the service
// name and type, newest first.
func (d *DB) QueryAllHistory(ctx context.Context, hours, limit int) ([]models.ServiceHistoryEntry, error) {
	since := d.now().Add(-time.Duration(hours) * time.Hour).UnixMilli()

	q := d.db.WithContext(ctx).
		Table("service_history AS h").
		Select("h.*, s.name AS service_name, s.type AS service_type").
		Joins("JOIN services s ON s.id = h.service_id").
		Where("h.checked_at >= ?", since).
		Order("h.checked_at DESC, h.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows := make([]models.ServiceHistoryEntry, 0)
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return rows, nil
}

type bucketRow struct {
	Bucket      int64
	AvgResponse float64
	Severity    int
	Samples     int
}

// BucketWindow returns the bucket width in minutes and the inclusive window
// [sinceMs, nowMs] used by QueryBucketedHistory. Buckets start at sinceMs, so the
// window always spans exactly hours and splits into at most maxPoints buckets.
func BucketWindow(now time.Time, hours, maxPoints int) (bucketMinutes int, sinceMs, nowMs int64) {
	if hours <= 0 {
		hours = DefaultGraphHours
	}
	if maxPoints <= 0 {
		maxPoints = DefaultGraphMaxPoints
	}

	bucketMinutes = int(math.Ceil(float64(hours*60) / float64(maxPoints)))
	if bucketMinutes < 1 {
		bucketMinutes = 1
	}
	nowMs = now.UnixMilli()
	sinceMs = nowMs - int64(hours)*int64(time.Hour/time.Millisecond)
	return bucketMinutes, sinceMs, nowMs
}

// severityCase maps the status column to models.Status.Severity. Unknown values
// count as healthy.
var severityCase = func() string {
	var b strings.Builder
	b.WriteString("CASE status")
	for _, status := range models.Statuses {
		if severity := status.Severity(); severity > 0 {
			fmt.Fprintf(&b, " WHEN '%s' THEN %d", status, severity)
		}
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}()

// QueryBucketedHistory downsamples the last hours of a service into at most
// maxPoints buckets, oldest first. Each bucket carries the rounded average response
// time, the worst status and the number of rows folded into it.
func (d *DB) QueryBucketedHistory(ctx context.Context, serviceID int64, hours, maxPoints int) ([]models.BucketPoint, error) {
	bucketMinutes, since, now := BucketWindow(d.now(), hours, maxPoints)
	bucketMs := int64(bucketMinutes) * int64(time.Minute/time.Millisecond)
	// A row checked exactly at now would open one bucket past the window end.
	lastBucket := (now - since - 1) / bucketMs

	var rows []bucketRow
	err := d.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT
			? + MIN((checked_at - ?) / ?, ?) * ? AS bucket,
			ROUND(AVG(response_time)) AS avg_response,
			MAX(%s) AS severity,
			COUNT(*) AS samples
		FROM service_history
		WHERE service_id = ? AND checked_at >= ? AND checked_at <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, severityCase), since, since, bucketMs, lastBucket, bucketMs, serviceID, since, now).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query bucketed history for service %d: %w", serviceID, err)
	}

	points := make([]models.BucketPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.BucketPoint{
			Timestamp:          time.UnixMilli(r.Bucket).UTC(),
			ResponseTimeMs:     int64(r.AvgResponse),
			Status:             models.StatusForSeverity(r.Severity),
			BucketSizeMinutes:  bucketMinutes,
			DataPointsAveraged: r.Samples,
		})
	}
	return points, nil
}

// DeleteHistoryOlderThan removes rows checked more than days ago and returns how
// many were deleted.
func (d *DB) DeleteHistoryOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -days).UnixMilli()
	res := d.db.WithContext(ctx).Where("checked_at < ?", cutoff).Delete(&models.HistoryEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete history older than %d days: %w", days, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteExcessHistory keeps only the newest maxRows rows of a service.
func (d *DB) DeleteExcessHistory(ctx context.Context, serviceID int64, maxRows int) (int64, error) {
	if maxRows < 0 {
		maxRows = 0
	}
	res := d.db.WithContext(ctx).Exec(`
		DELETE FROM service_history
		WHERE service_id = ?
		AND id NOT IN (
			SELECT id FROM service_history
			WHERE service_id = ?
			ORDER BY checked_at DESC, id DESC
			LIMIT ?
		)
	`, serviceID, serviceID, maxRows)
	if res.Error != nil {
		return 0, fmt.Errorf("delete excess history for service %d: %w", serviceID, res.Error)
	}
	return res.RowsAffected, nil
}

// CountHistory returns the number of rows of a service checked in [fromMs, toMs].
func (d *DB) CountHistory(ctx context.Context, serviceID int64, fromMs, toMs int64) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.HistoryEntry{}).
		Where("service_id = ? AND checked_at >= ? AND checked_at <= ?", serviceID, fromMs, toMs).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count history for service %d: %w", serviceID, err)
	}
	return count, nil
}
