package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// spectrumBatchSize bounds the rows of one multi-row insert, keeping the
// number of bound parameters under the sqlite limit.
const spectrumBatchSize = 1000

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened, and the schema initialized, on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, testType spectrum.TestType, deviceType, deviceID string, config any) (run *spectrum.Run, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return nil, err
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := runData{
		UUID:       uuid.NewString(),
		StartTime:  time.Now().UTC(),
		TestType:   string(testType),
		DeviceType: deviceType,
		DeviceID:   deviceID,
		Config:     configData,
	}

	result, err := stmt.ExecContext(ctx, data.UUID, data.StartTime, data.TestType, data.DeviceType, data.DeviceID, data.Config)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	if data.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting run ID: %w", err)
	}
	return toRun(data), nil
}

func (s *SqliteStore) Run(ctx context.Context, id int64) (run *spectrum.Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if run, err = scanRun(stmt.QueryRowContext(ctx, id)); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*spectrum.Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var run *spectrum.Run
		if run, err = scanRun(rows); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func (s *SqliteStore) StoreSpectrum(ctx context.Context, runID int64, band *spectrum.BandSpectrum) (err error) {
	if len(band.Points) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertBandSQL, runID, band.Band.Start, band.Band.Stop, band.Points[0].BinWidth)
	if err != nil {
		return fmt.Errorf("inserting band: %w", err)
	}
	bandID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting band ID: %w", err)
	}

	for start := 0; start < len(band.Points); start += spectrumBatchSize {
		end := min(start+spectrumBatchSize, len(band.Points))
		query, values := buildSpectrumInsert(bandID, band.Points[start:end])
		if _, err = tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("batch inserting spectrum: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func buildSpectrumInsert(bandID int64, points []spectrum.SpectralPoint) (string, []any) {
	const valuesPlaceholder = "(?, ?, ?)"

	values := make([]any, 0, len(points)*3)

	var sb strings.Builder
	sb.WriteString(insertSpectrumSQL)

	for i, p := range points {
		values = append(values, bandID, p.Frequency, p.Power)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}
	return sb.String(), values
}

func (s *SqliteStore) Spectrum(ctx context.Context, runID int64) (bands []*spectrum.BandSpectrum, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	meta, err := s.bands(ctx, db, runID)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, ErrNoData
	}

	stmt, err := db.PrepareContext(ctx, selectSpectrumSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, b := range meta {
		band := spectrum.BandSpectrum{Band: sweep.Band{Start: b.BandStart, Stop: b.BandStop}}
		if band.Points, err = s.bandPoints(ctx, stmt, b); err != nil {
			return nil, err
		}
		bands = append(bands, &band)
	}
	return bands, nil
}

func (s *SqliteStore) bands(ctx context.Context, db *sql.DB, runID int64) (bands []bandData, err error) {
	rows, err := db.QueryContext(ctx, selectBandsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying bands: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var b bandData
		if err = rows.Scan(&b.ID, &b.BandStart, &b.BandStop, &b.BinWidth); err != nil {
			return nil, fmt.Errorf("scanning band: %w", err)
		}
		bands = append(bands, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bands: %w", err)
	}
	return bands, nil
}

func (s *SqliteStore) bandPoints(ctx context.Context, stmt *sql.Stmt, b bandData) (points []spectrum.SpectralPoint, err error) {
	rows, err := stmt.QueryContext(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("querying spectrum: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		p := spectrum.SpectralPoint{BinWidth: b.BinWidth}
		if err = rows.Scan(&p.Frequency, &p.Power); err != nil {
			return nil, fmt.Errorf("scanning spectral point: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spectrum: %w", err)
	}
	return points, nil
}

func (s *SqliteStore) StoreCompression(ctx context.Context, runID int64, points []spectrum.CompressionPoint) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertCompressionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, p := range points {
		if _, err = stmt.ExecContext(ctx, runID, p.Frequency, p.Amplitude, p.Reached); err != nil {
			return fmt.Errorf("inserting compression point: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Compression(ctx context.Context, runID int64) (points []spectrum.CompressionPoint, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectCompressionSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying compression: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p spectrum.CompressionPoint
		if err = rows.Scan(&p.Frequency, &p.Amplitude, &p.Reached); err != nil {
			return nil, fmt.Errorf("scanning compression point: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating compression: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}

func (s *SqliteStore) StorePowerPairs(ctx context.Context, runID int64, pairs []spectrum.PowerPair) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertPowerPairSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, p := range pairs {
		if _, err = stmt.ExecContext(ctx, runID, i, p.Reference, p.Device); err != nil {
			return fmt.Errorf("inserting power pair: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) PowerPairs(ctx context.Context, runID int64) (pairs []spectrum.PowerPair, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectPowerPairsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying power pairs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p spectrum.PowerPair
		if err = rows.Scan(&p.Reference, &p.Device); err != nil {
			return nil, fmt.Errorf("scanning power pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating power pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, ErrNoData
	}
	return pairs, nil
}

func (s *SqliteStore) StoreScaleFactor(ctx context.Context, runID int64, factor float64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, upsertScaleFactorSQL, runID, factor); err != nil {
		return fmt.Errorf("storing scale factor: %w", err)
	}
	return nil
}

func (s *SqliteStore) ScaleFactor(ctx context.Context, runID int64) (float64, error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}

	var factor float64
	err = db.QueryRowContext(ctx, selectScaleFactorSQL, runID).Scan(&factor)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNoData
	case err != nil:
		return 0, fmt.Errorf("scanning scale factor: %w", err)
	}
	return factor, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
