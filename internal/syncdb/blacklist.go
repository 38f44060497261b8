package syncdb

import (
	"database/sql"
	"errors"
	"time"

	"github.com/openmined/syncengine/internal/model"
)

// BlacklistKind mirrors the per-kind blacklist tables kDrive keeps in
// `sync_node`: Undecided items await a user decision (selective sync),
// Blacklist/Whitelist are permanent user choices, TmpBlacklist is the
// engine's own ephemeral "don't retry this id" set (spec §4.3, §7).
type BlacklistKind string

const (
	Undecided    BlacklistKind = "undecided"
	Blacklist    BlacklistKind = "blacklist"
	Whitelist    BlacklistKind = "whitelist"
	TmpBlacklist BlacklistKind = "tmp_blacklist"
)

type blacklistRow struct {
	NodeID    string     `db:"node_id"`
	Side      string     `db:"side"`
	Kind      string     `db:"kind"`
	Reason    string     `db:"reason"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// TmpBlacklistAdd records id as temporarily blacklisted until expiry (zero
// time means "until the name changes", enforced by the caller re-adding
// with a fresh expiry rather than by this table).
func (d *DB) TmpBlacklistAdd(side model.Side, id model.NodeID, reason string, expiry time.Time) error {
	var expPtr *time.Time
	if !expiry.IsZero() {
		expPtr = &expiry
	}
	_, err := d.conn.Exec(
		`INSERT OR REPLACE INTO sync_node (node_id, side, kind, reason, expires_at) VALUES (?, ?, ?, ?, ?)`,
		string(id), string(side), string(TmpBlacklist), reason, expPtr,
	)
	return err
}

// TmpBlacklistRemove clears a previously tmp-blacklisted id, e.g. when its
// name changes (spec §4.3: "will not be re-attempted until ... the name
// changes").
func (d *DB) TmpBlacklistRemove(side model.Side, id model.NodeID) error {
	_, err := d.conn.Exec(
		`DELETE FROM sync_node WHERE node_id = ? AND side = ? AND kind = ?`,
		string(id), string(side), string(TmpBlacklist),
	)
	return err
}

// TmpBlacklisted reports whether id is currently tmp-blacklisted on side,
// pruning the entry first if it has expired.
func (d *DB) TmpBlacklisted(side model.Side, id model.NodeID) (bool, error) {
	var row blacklistRow
	err := d.conn.Get(&row,
		`SELECT * FROM sync_node WHERE node_id = ? AND side = ? AND kind = ?`,
		string(id), string(side), string(TmpBlacklist),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		_ = d.TmpBlacklistRemove(side, id)
		return false, nil
	}
	return true, nil
}

// LoadTmpBlacklist reconstructs the in-memory set of currently
// tmp-blacklisted ids on side, exactly as the engine does on startup
// (spec §6 "tmpBlacklist (in-memory, reconstructed from sync_node on
// startup)").
func (d *DB) LoadTmpBlacklist(side model.Side) (map[model.NodeID]struct{}, error) {
	var rows []blacklistRow
	if err := d.conn.Select(&rows,
		`SELECT * FROM sync_node WHERE side = ? AND kind = ?`, string(side), string(TmpBlacklist)); err != nil {
		return nil, err
	}
	out := make(map[model.NodeID]struct{}, len(rows))
	now := time.Now()
	for _, r := range rows {
		if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
			continue
		}
		out[model.NodeID(r.NodeID)] = struct{}{}
	}
	return out, nil
}

// SetAppState persists a small engine-internal key/value, e.g. "last pass
// fully completed".
func (d *DB) SetAppState(key, value string) error {
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetAppState reads a previously stored key, returning "" if absent.
func (d *DB) GetAppState(key string) (string, error) {
	var value string
	err := d.conn.Get(&value, `SELECT value FROM app_state WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// ExcludedPaths returns the set of selective-sync excluded paths.
func (d *DB) ExcludedPaths() ([]string, error) {
	var paths []string
	if err := d.conn.Select(&paths, `SELECT path FROM selective_sync WHERE excluded = 1`); err != nil {
		return nil, err
	}
	return paths, nil
}

// SetExcluded marks (or unmarks) path as excluded from selective sync.
func (d *DB) SetExcluded(path string, excluded bool) error {
	v := 0
	if excluded {
		v = 1
	}
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO selective_sync (path, excluded) VALUES (?, ?)`, path, v)
	return err
}
