package syncdb

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openmined/syncengine/internal/model"
)

// Cache is a read-through LRU wrapper over the DB. Writes always go
// straight to the DB and the writer invalidates the cache entry; reads are
// served from cache on hit. The executor holds one and invalidates it after
// its writes; the other pipeline stages read the DB itself.
type Cache struct {
	db       *DB
	byID     *lru.Cache[model.DbNodeID, *DbNode]
	byLocal  *lru.Cache[model.NodeID, *DbNode]
	byRemote *lru.Cache[model.NodeID, *DbNode]
}

// NewCache wraps db with an LRU of the given capacity (entries per index).
func NewCache(db *DB, capacity int) (*Cache, error) {
	byID, err := lru.New[model.DbNodeID, *DbNode](capacity)
	if err != nil {
		return nil, err
	}
	byLocal, err := lru.New[model.NodeID, *DbNode](capacity)
	if err != nil {
		return nil, err
	}
	byRemote, err := lru.New[model.NodeID, *DbNode](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, byID: byID, byLocal: byLocal, byRemote: byRemote}, nil
}

// GetByID returns the cached row for id, falling back to the DB on miss.
func (c *Cache) GetByID(id model.DbNodeID) (*DbNode, error) {
	if n, ok := c.byID.Get(id); ok {
		return n, nil
	}
	n, err := c.db.GetByID(id)
	if err != nil || n == nil {
		return n, err
	}
	c.store(n)
	return n, nil
}

// GetByNodeID returns the cached row addressed by its per-side id, falling
// back to the DB on miss.
func (c *Cache) GetByNodeID(side model.Side, id model.NodeID) (*DbNode, error) {
	idx := c.byLocal
	if side == model.Remote {
		idx = c.byRemote
	}
	if n, ok := idx.Get(id); ok {
		return n, nil
	}
	n, err := c.db.GetByNodeID(side, id)
	if err != nil || n == nil {
		return n, err
	}
	c.store(n)
	return n, nil
}

// Invalidate drops any cached entries for n, forcing the next read to hit
// the DB. Called by the executor after every Insert/Update/Delete.
func (c *Cache) Invalidate(n *DbNode) {
	if n == nil {
		return
	}
	c.byID.Remove(n.DbID)
	if n.LocalID != nil {
		c.byLocal.Remove(*n.LocalID)
	}
	if n.RemoteID != nil {
		c.byRemote.Remove(*n.RemoteID)
	}
}

// InvalidateAll clears every cached entry. Used after a restart is
// requested, since S5/S7 may have mutated rows the cache doesn't know about
// by id alone (e.g. a cycle-breaking rename).
func (c *Cache) InvalidateAll() {
	c.byID.Purge()
	c.byLocal.Purge()
	c.byRemote.Purge()
}

func (c *Cache) store(n *DbNode) {
	c.byID.Add(n.DbID, n)
	if n.LocalID != nil {
		c.byLocal.Add(*n.LocalID, n)
	}
	if n.RemoteID != nil {
		c.byRemote.Add(*n.RemoteID, n)
	}
}
