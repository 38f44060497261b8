package syncdb

import (
	"time"

	"github.com/openmined/syncengine/internal/model"
)

// NodeStatus is a coarse health marker for a DbNode, surfaced to the
// executor's error taxonomy (see internal/errs) when a propagation attempt
// leaves a row in a non-nominal state.
type NodeStatus string

const (
	StatusOK    NodeStatus = "ok"
	StatusError NodeStatus = "error"
)

// DbNode is a row of the sync DB's `node` table: the last-agreed state of
// one synchronized filesystem object, per spec §3.
type DbNode struct {
	DbID         model.DbNodeID  `db:"db_id"`
	ParentDbID   *model.DbNodeID `db:"parent_db_id"` // nil for the sync root
	LocalID      *model.NodeID   `db:"local_id"`
	RemoteID     *model.NodeID   `db:"remote_id"`
	LocalName    string          `db:"local_name"`
	RemoteName   string          `db:"remote_name"`
	Type         model.ItemType  `db:"type"`
	Size         int64           `db:"size"`
	Checksum     string          `db:"checksum"`
	CreatedAt    time.Time       `db:"created_at"`
	LastModLocal time.Time       `db:"last_mod_local"`
	LastModRemote time.Time      `db:"last_mod_remote"`
	Status       NodeStatus      `db:"status"`
}

// Name returns the row's name on the given side.
func (n *DbNode) Name(side model.Side) string {
	if side == model.Local {
		return n.LocalName
	}
	return n.RemoteName
}

// ID returns the row's id on the given side, or "" if that side has never
// seen the object (e.g. a pending Create).
func (n *DbNode) ID(side model.Side) model.NodeID {
	var id *model.NodeID
	if side == model.Local {
		id = n.LocalID
	} else {
		id = n.RemoteID
	}
	if id == nil {
		return ""
	}
	return *id
}

// LastMod returns the row's last-known modification time on the given side.
func (n *DbNode) LastMod(side model.Side) time.Time {
	if side == model.Local {
		return n.LastModLocal
	}
	return n.LastModRemote
}
