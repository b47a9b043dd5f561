package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/radio-calibration/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// toConfigData accepts a string, []byte or any JSON-serializable value.
func toConfigData(config any) (sql.NullString, error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		configData.Valid = true
		configData.String = c

	case []byte:
		configData.Valid = true
		configData.String = string(c)

	default:
		p, err := json.Marshal(c)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}
		configData.Valid = true
		configData.String = string(p)
	}

	return configData, nil
}

func toRun(r runData) *spectrum.Run {
	run := spectrum.Run{
		ID:         r.ID,
		UUID:       r.UUID,
		StartTime:  r.StartTime,
		TestType:   spectrum.TestType(r.TestType),
		DeviceType: r.DeviceType,
		DeviceID:   r.DeviceID,
	}
	if r.Config.Valid {
		run.Config = &r.Config.String
	}
	return &run
}

func scanRun(row interface{ Scan(...any) error }) (*spectrum.Run, error) {
	var r runData
	if err := row.Scan(&r.ID, &r.UUID, &r.StartTime, &r.TestType, &r.DeviceType, &r.DeviceID, &r.Config); err != nil {
		return nil, err
	}
	return toRun(r), nil
}
