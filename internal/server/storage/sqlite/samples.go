package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/pidash/internal/models"
	"github.com/iudanet/pidash/internal/server/storage"
)

var _ storage.SampleStorage = (*Storage)(nil)

// SaveSample appends a sample
func (s *Storage) SaveSample(ctx context.Context, sample *models.Sample) error {
	point, err := json.Marshal(sample.Point)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	query := `INSERT INTO samples (ts, point) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, sample.Timestamp.UnixMilli(), string(point)); err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}
	return nil
}

// ListSamples returns samples with timestamp >= since, oldest first
func (s *Storage) ListSamples(ctx context.Context, since time.Time) ([]*models.Sample, error) {
	query := `
		SELECT ts, point
		FROM samples
		WHERE ts >= ?
		ORDER BY ts ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var samples []*models.Sample
	for rows.Next() {
		var (
			ts    int64
			point string
		)
		if err := rows.Scan(&ts, &point); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		sample := &models.Sample{Timestamp: time.UnixMilli(ts)}
		if err := json.Unmarshal([]byte(point), &sample.Point); err != nil {
			return nil, fmt.Errorf("failed to decode sample: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return samples, nil
}

// DeleteSamplesBefore removes samples older than cutoff
func (s *Storage) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
