package library

import (
	"database/sql"
	"errors"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const takeColumns = "id, title, stage, raw_path, raw_bytes, elapsed_seconds, auto_stopped, trimmed_path, trimmed_bytes, trim_applied, trim_reason, trim_start, trim_end, video_id, share_id, share_url, media_url, upload_error, upload_attempts, created_at, updated_at"

func scanTake(scanner interface{ Scan(dest ...any) error }) (*Take, error) {
	var (
		id             string
		title          sql.NullString
		stage          string
		rawPath        sql.NullString
		rawBytes       int64
		elapsed        int64
		autoStopped    int64
		trimmedPath    sql.NullString
		trimmedBytes   int64
		trimApplied    int64
		trimReason     sql.NullString
		trimStart      sql.NullFloat64
		trimEnd        sql.NullFloat64
		videoID        sql.NullString
		shareID        sql.NullString
		shareURL       sql.NullString
		mediaURL       sql.NullString
		uploadError    sql.NullString
		uploadAttempts int64
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&id,
		&title,
		&stage,
		&rawPath,
		&rawBytes,
		&elapsed,
		&autoStopped,
		&trimmedPath,
		&trimmedBytes,
		&trimApplied,
		&trimReason,
		&trimStart,
		&trimEnd,
		&videoID,
		&shareID,
		&shareURL,
		&mediaURL,
		&uploadError,
		&uploadAttempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	take := &Take{
		ID:             id,
		Title:          title.String,
		Stage:          stage,
		RawPath:        rawPath.String,
		RawBytes:       rawBytes,
		ElapsedSeconds: int(elapsed),
		AutoStopped:    autoStopped != 0,
		TrimmedPath:    trimmedPath.String,
		TrimmedBytes:   trimmedBytes,
		TrimApplied:    trimApplied != 0,
		TrimReason:     trimReason.String,
		VideoID:        videoID.String,
		ShareID:        shareID.String,
		ShareURL:       shareURL.String,
		MediaURL:       mediaURL.String,
		UploadError:    uploadError.String,
		UploadAttempts: int(uploadAttempts),
	}
	if trimStart.Valid {
		v := trimStart.Float64
		take.TrimStart = &v
	}
	if trimEnd.Valid {
		v := trimEnd.Float64
		take.TrimEnd = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		take.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		take.UpdatedAt = updated
	}
	return take, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
