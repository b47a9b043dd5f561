package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertRunSQL = `
INSERT INTO runs (
                  uuid,
                  start_time,
                  test_type,
                  device_type,
                  device_id,
                  config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectRunSQL = `
SELECT 
    id, 
    uuid,
    start_time, 
    test_type,
    device_type, 
    device_id, 
    config 
FROM runs 
WHERE 
    id = ?`

	selectRunsSQL = `
SELECT 
    id, 
    uuid,
    start_time, 
    test_type,
    device_type, 
    device_id, 
    config 
FROM runs
ORDER BY start_time, id`

	insertBandSQL = `
INSERT INTO bands (run_id,
                   band_start,
                   band_stop,
                   bin_width)
VALUES (?, ?, ?, ?)`

	insertSpectrumSQL = `
INSERT INTO spectrum (band_id,
                      frequency,
                      power)
VALUES `

	selectBandsSQL = `
SELECT 
    id,
    band_start,
    band_stop,
    bin_width
FROM bands
WHERE 
    run_id = ?
ORDER BY band_start`

	selectSpectrumSQL = `
SELECT 
    frequency,
    power
FROM spectrum
WHERE 
    band_id = ?
ORDER BY frequency`

	insertCompressionSQL = `
INSERT INTO compression (run_id,
                         frequency,
                         amplitude,
                         reached)
VALUES (?, ?, ?, ?)`

	selectCompressionSQL = `
SELECT 
    frequency,
    amplitude,
    reached
FROM compression
WHERE 
    run_id = ?
ORDER BY frequency`

	insertPowerPairSQL = `
INSERT INTO power_pairs (run_id,
                         seq,
                         reference,
                         device)
VALUES (?, ?, ?, ?)`

	selectPowerPairsSQL = `
SELECT 
    reference,
    device
FROM power_pairs
WHERE 
    run_id = ?
ORDER BY seq`

	upsertScaleFactorSQL = `
INSERT INTO scale_factors (run_id, factor)
VALUES (?, ?)
ON CONFLICT (run_id) DO UPDATE SET factor = excluded.factor`

	selectScaleFactorSQL = `
SELECT 
    factor
FROM scale_factors
WHERE 
    run_id = ?`
)
