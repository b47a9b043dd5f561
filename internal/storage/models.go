package storage

import (
	"database/sql"
	"time"
)

type runData struct {
	ID         int64
	UUID       string
	StartTime  time.Time
	TestType   string
	DeviceType string
	DeviceID   string
	Config     sql.NullString
}

type bandData struct {
	ID        int64
	BandStart float64
	BandStop  float64
	BinWidth  float64
}
