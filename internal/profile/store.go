package profile

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/netsel/internal/scan"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 2

// deletedEphemeralWindow is how long a user deletion blocks an ephemeral
// network from being re-recommended.
const deletedEphemeralWindow = 24 * time.Hour

// Store persists network profiles and the ephemeral-deletion ledger in
// sqlite. Safe for concurrent use; sqlite serializes writers and the DSN
// sets a busy timeout.
type Store struct {
	conn   *sql.DB
	logger *zap.Logger
}

// NewStore opens (creating if needed) the profile database and applies
// pending migrations.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &Store{conn: conn, logger: logger}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// migrate applies schema migrations incrementally.
func (s *Store) migrate() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for version < schemaVersion {
		version++
		switch version {
		case 1:
			if err := applySchemaV1(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		case 2:
			if err := applySchemaV2(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func applySchemaV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ssid TEXT NOT NULL,
			bssid TEXT NOT NULL DEFAULT '',
			key_mgmt TEXT NOT NULL,
			ephemeral INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(ssid, key_mgmt)
		);

		CREATE TABLE IF NOT EXISTS deleted_ephemerals (
			ssid TEXT PRIMARY KEY,
			deleted_at TIMESTAMP NOT NULL
		);
	`)
	return err
}

// applySchemaV2 adds candidate tracking columns to profiles.
func applySchemaV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		ALTER TABLE profiles ADD COLUMN candidate_bssid TEXT NOT NULL DEFAULT '';
		ALTER TABLE profiles ADD COLUMN candidate_signal_dbm INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE profiles ADD COLUMN candidate_frequency INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE profiles ADD COLUMN candidate_score INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE profiles ADD COLUMN candidate_seen_at TIMESTAMP;
	`)
	return err
}

// WasEphemeralDeleted reports whether the user recently removed an ephemeral
// profile with this (quoted) SSID. Such networks must not be immediately
// re-recommended.
func (s *Store) WasEphemeralDeleted(ssid string) bool {
	var n int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM deleted_ephemerals WHERE ssid = ? AND deleted_at > ?",
		ssid, time.Now().Add(-deletedEphemeralWindow),
	).Scan(&n)
	if err != nil {
		s.logger.Error("deleted-ephemeral lookup failed", zap.String("ssid", ssid), zap.Error(err))
		return false
	}
	return n > 0
}

// ForObservation returns the persisted profile matching an observation's
// SSID and derived security, or nil if the network is unknown.
func (s *Store) ForObservation(ap scan.AccessPoint) (*Profile, error) {
	row := s.conn.QueryRow(selectProfile+" WHERE ssid = ? AND key_mgmt = ?",
		scan.QuoteSSID(ap.SSID), scan.KeyManagementFromCapabilities(ap.Capabilities))
	return scanProfile(row)
}

// Get returns the profile with the given id.
func (s *Store) Get(id int64) (*Profile, error) {
	p, err := scanProfile(s.conn.QueryRow(selectProfile+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %d not found", id)
	}
	return p, nil
}

// AddOrUpdate persists the profile and returns its id. A descriptor with the
// unassigned sentinel either updates the existing row with the same
// (ssid, key_mgmt) identity or inserts a new one. The principal records who
// created the row; ephemeral profiles are created under the system principal,
// never an end-user identity.
func (s *Store) AddOrUpdate(p *Profile, principal string) (int64, error) {
	now := time.Now()

	if p.ID == UnassignedID {
		existing, err := scanProfile(s.conn.QueryRow(
			selectProfile+" WHERE ssid = ? AND key_mgmt = ?", p.SSID, p.KeyMgmt))
		if err != nil {
			return UnassignedID, err
		}
		if existing != nil {
			p.ID = existing.ID
		}
	}

	if p.ID == UnassignedID {
		row := s.conn.QueryRow(`
			INSERT INTO profiles (ssid, bssid, key_mgmt, ephemeral, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, p.SSID, p.BSSID, p.KeyMgmt, p.Ephemeral, principal, now, now)
		if err := row.Scan(&p.ID); err != nil {
			return UnassignedID, err
		}
		return p.ID, nil
	}

	result, err := s.conn.Exec(`
		UPDATE profiles
		SET ssid = ?, bssid = ?, key_mgmt = ?, ephemeral = ?, updated_at = ?
		WHERE id = ?
	`, p.SSID, p.BSSID, p.KeyMgmt, p.Ephemeral, now, p.ID)
	if err != nil {
		return UnassignedID, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return UnassignedID, err
	}
	if affected == 0 {
		return UnassignedID, fmt.Errorf("profile %d not found", p.ID)
	}
	return p.ID, nil
}

// SetCandidate records the observation as the profile's current best
// candidate.
func (s *Store) SetCandidate(id int64, ap scan.AccessPoint, score int) error {
	result, err := s.conn.Exec(`
		UPDATE profiles
		SET candidate_bssid = ?, candidate_signal_dbm = ?, candidate_frequency = ?,
		    candidate_score = ?, candidate_seen_at = ?, updated_at = ?
		WHERE id = ?
	`, ap.BSSID, ap.SignalDBm, ap.Frequency, score, time.Now(), time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("profile %d not found", id)
	}
	return nil
}

// RemoveEphemeral deletes an ephemeral profile by (quoted) SSID on behalf of
// the user and records the deletion so the network is not immediately
// re-recommended.
func (s *Store) RemoveEphemeral(ssid string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM profiles WHERE ssid = ? AND ephemeral = 1", ssid)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no ephemeral profile with SSID %s", ssid)
	}

	if _, err := tx.Exec(`
		INSERT INTO deleted_ephemerals (ssid, deleted_at) VALUES (?, ?)
		ON CONFLICT(ssid) DO UPDATE SET deleted_at = excluded.deleted_at
	`, ssid, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the number of persisted profiles.
func (s *Store) Count() (int, error) {
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&n)
	return n, err
}

const selectProfile = `
	SELECT id, ssid, bssid, key_mgmt, ephemeral, created_by,
	       candidate_bssid, candidate_signal_dbm, candidate_frequency,
	       candidate_score, candidate_seen_at, created_at, updated_at
	FROM profiles`

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var seenAt sql.NullTime
	err := row.Scan(&p.ID, &p.SSID, &p.BSSID, &p.KeyMgmt, &p.Ephemeral, &p.CreatedBy,
		&p.CandidateBSSID, &p.CandidateSignalDBm, &p.CandidateFrequency,
		&p.CandidateScore, &seenAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if seenAt.Valid {
		p.CandidateSeenAt = seenAt.Time
	}
	return &p, nil
}
