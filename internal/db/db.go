// Package db persists aggregated speed observations. Each pipeline
// worker opens its own DB and closes it when the worker exits;
// connections are never shared across workers.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/CVTS/cvts/internal/speed"
)

type DB struct {
	*sql.DB
}

// New opens (creating if needed) the traversal database at path.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS traversals (
			rego              TEXT NOT NULL,
			way               BIGINT NOT NULL,
			hour              INT NOT NULL,
			weekday           INT NOT NULL,
			speed             DOUBLE NOT NULL,
			weight            BIGINT NOT NULL,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS traversals_rego ON traversals(rego);
		CREATE INDEX IF NOT EXISTS traversals_way ON traversals(way, hour, weekday);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating traversals schema: %w", err)
	}

	return &DB{db}, nil
}

// ReplaceTraversals replaces all of a vehicle's observations in one
// transaction. Deleting first keeps a re-run of a previously failed
// vehicle from duplicating rows.
func (db *DB) ReplaceTraversals(rego string, obs []speed.Observation) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM traversals WHERE rego = ?`, rego); err != nil {
		return fmt.Errorf("clearing traversals for %s: %w", rego, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO traversals (rego, way, hour, weekday, speed, weight)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(rego, o.WayID, o.Hour, o.Weekday, o.Speed, o.Weight); err != nil {
			return fmt.Errorf("inserting traversal for %s way %d: %w", rego, o.WayID, err)
		}
	}
	return tx.Commit()
}

// TraversalCount reports the number of stored observations for a
// vehicle, or for all vehicles when rego is empty.
func (db *DB) TraversalCount(rego string) (int64, error) {
	var n int64
	var err error
	if rego == "" {
		err = db.QueryRow(`SELECT COUNT(*) FROM traversals`).Scan(&n)
	} else {
		err = db.QueryRow(`SELECT COUNT(*) FROM traversals WHERE rego = ?`, rego).Scan(&n)
	}
	return n, err
}

// Traversals returns a vehicle's stored observations ordered by
// (way, hour, weekday). Used by reporting and tests.
func (db *DB) Traversals(rego string) ([]speed.Observation, error) {
	rows, err := db.Query(`
		SELECT way, hour, weekday, speed, weight
		FROM traversals WHERE rego = ?
		ORDER BY way, hour, weekday`, rego)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []speed.Observation
	for rows.Next() {
		var o speed.Observation
		if err := rows.Scan(&o.WayID, &o.Hour, &o.Weekday, &o.Speed, &o.Weight); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}
