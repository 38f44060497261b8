// Package syncdb implements the persistent Sync DB: the single source of
// truth for "what was last in sync" between the two replicas (spec §3, §6).
// It is single-writer — only the executor (S8) mutates it during a pass.
// The executor invalidates the LRU cache wrapper in cache.go after each
// write; the other pipeline stages read the DB directly.
package syncdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/openmined/syncengine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS node (
	db_id           INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_db_id    INTEGER REFERENCES node(db_id) ON DELETE CASCADE,
	local_id        TEXT,
	remote_id       TEXT,
	local_name      TEXT NOT NULL,
	remote_name     TEXT NOT NULL,
	type            INTEGER NOT NULL,
	size            INTEGER NOT NULL DEFAULT 0,
	checksum        TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	last_mod_local  DATETIME NOT NULL,
	last_mod_remote DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'ok'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_node_local_id ON node(local_id) WHERE local_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_node_remote_id ON node(remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_node_parent_local_name ON node(parent_db_id, local_name);
CREATE INDEX IF NOT EXISTS idx_node_parent_remote_name ON node(parent_db_id, remote_name);

-- Per-kind blacklist, spec §6: Undecided, Blacklist, Whitelist, TmpBlacklist.
CREATE TABLE IF NOT EXISTS sync_node (
	node_id    TEXT NOT NULL,
	side       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	expires_at DATETIME,
	PRIMARY KEY (node_id, side, kind)
);

CREATE TABLE IF NOT EXISTS app_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS selective_sync (
	path      TEXT PRIMARY KEY,
	excluded  INTEGER NOT NULL DEFAULT 0
);
`

// DB wraps the sync DB's sqlite connection with the CRUD operations S8
// needs and the blacklist/app-state tables the rest of the pipeline reads.
type DB struct {
	conn *sqlx.DB
	path string
}

// Open creates or opens the sync DB at path (":memory:" for tests) and
// ensures the schema exists.
func Open(path string, opts ...Option) (*DB, error) {
	allOpts := append([]Option{WithPath(path)}, opts...)
	conn, err := newSqliteDB(allOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init sync db schema: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Close releases the underlying sqlite connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back otherwise. All multi-statement updates from the executor (§6) go
// through this so an aborted pass never leaves the DB half-written.
func (d *DB) WithTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := d.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("syncdb: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Insert adds a new DbNode row, assigning its DbID. Used at Create
// propagation (spec §4.8).
func (d *DB) Insert(n *DbNode) error {
	const q = `INSERT INTO node
		(parent_db_id, local_id, remote_id, local_name, remote_name, type, size, checksum, created_at, last_mod_local, last_mod_remote, status)
		VALUES (:parent_db_id, :local_id, :remote_id, :local_name, :remote_name, :type, :size, :checksum, :created_at, :last_mod_local, :last_mod_remote, :status)`
	res, err := d.conn.NamedExec(q, n)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert node: lastInsertId: %w", err)
	}
	n.DbID = model.DbNodeID(id)
	return nil
}

// Update persists all mutable fields of n. Used at Edit/Move propagation.
func (d *DB) Update(n *DbNode) error {
	const q = `UPDATE node SET
		parent_db_id = :parent_db_id,
		local_id = :local_id,
		remote_id = :remote_id,
		local_name = :local_name,
		remote_name = :remote_name,
		type = :type,
		size = :size,
		checksum = :checksum,
		last_mod_local = :last_mod_local,
		last_mod_remote = :last_mod_remote,
		status = :status
		WHERE db_id = :db_id`
	_, err := d.conn.NamedExec(q, n)
	if err != nil {
		return fmt.Errorf("update node %d: %w", n.DbID, err)
	}
	return nil
}

// Delete removes a DbNode row and, by FK cascade, all its descendants.
// Used at Delete propagation.
func (d *DB) Delete(id model.DbNodeID) error {
	_, err := d.conn.Exec(`DELETE FROM node WHERE db_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	return nil
}

// GetByID fetches a row by its surrogate key.
func (d *DB) GetByID(id model.DbNodeID) (*DbNode, error) {
	var n DbNode
	err := d.conn.Get(&n, `SELECT * FROM node WHERE db_id = ?`, id)
	return scanResult(&n, err)
}

// GetByNodeID fetches a row by its per-side id.
func (d *DB) GetByNodeID(side model.Side, id model.NodeID) (*DbNode, error) {
	col := "local_id"
	if side == model.Remote {
		col = "remote_id"
	}
	var n DbNode
	err := d.conn.Get(&n, `SELECT * FROM node WHERE `+col+` = ?`, string(id))
	return scanResult(&n, err)
}

// GetByParentAndName fetches a row by (parentDbId, name) on the given side,
// used for rename/move detection and sibling-clash checks.
func (d *DB) GetByParentAndName(parent *model.DbNodeID, side model.Side, name string) (*DbNode, error) {
	col := "local_name"
	if side == model.Remote {
		col = "remote_name"
	}
	var n DbNode
	var err error
	if parent == nil {
		err = d.conn.Get(&n, `SELECT * FROM node WHERE parent_db_id IS NULL AND `+col+` = ? COLLATE NOCASE`, name)
	} else {
		err = d.conn.Get(&n, `SELECT * FROM node WHERE parent_db_id = ? AND `+col+` = ? COLLATE NOCASE`, *parent, name)
	}
	return scanResult(&n, err)
}

// Children returns all rows whose parent is parent.
func (d *DB) Children(parent model.DbNodeID) ([]*DbNode, error) {
	var rows []*DbNode
	if err := d.conn.Select(&rows, `SELECT * FROM node WHERE parent_db_id = ?`, parent); err != nil {
		return nil, fmt.Errorf("children of %d: %w", parent, err)
	}
	return rows, nil
}

// All returns every row in the DB; used by the consistency checker and by
// tests asserting DB-uniqueness invariants.
func (d *DB) All() ([]*DbNode, error) {
	var rows []*DbNode
	if err := d.conn.Select(&rows, `SELECT * FROM node`); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return rows, nil
}

func scanResult(n *DbNode, err error) (*DbNode, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}
