package primary

import "vocbase/logger"

// CapConstraint bounds a collection's live document count and/or the total
// size of its live documents' marker bodies (Figures' AliveBytes). Whenever a create or update pushes either bound
// over the limit, enforceCapLocked evicts the oldest (first-created) live
// documents, oldest first, until both bounds are satisfied again.
type CapConstraint struct {
	MaxDocuments int64 // 0 = unbounded
	MaxBytes     int64 // 0 = unbounded
}

// SetCapConstraint installs cc. It is checked lazily, on the next write
// that would otherwise exceed it — installing a tighter constraint than
// the collection currently satisfies does not evict anything until then.
func (c *Collection) SetCapConstraint(cc CapConstraint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capConstraint = cc
}

func (c *Collection) enforceCapLocked() error {
	cc := c.capConstraint
	if cc.MaxDocuments <= 0 && cc.MaxBytes <= 0 {
		return nil
	}
	for {
		overDocs := cc.MaxDocuments > 0 && int64(len(c.index)) > cc.MaxDocuments
		overBytes := cc.MaxBytes > 0 && c.aliveBytes > cc.MaxBytes
		if !overDocs && !overBytes {
			return nil
		}
		front := c.order.Front()
		if front == nil {
			return nil
		}
		key := front.Value.(string)
		if err := c.evictForCapLocked(key); err != nil {
			return err
		}
	}
}

func (c *Collection) evictForCapLocked(key string) error {
	mp, ok := c.index[key]
	if !ok {
		return nil
	}
	journalFID, err := c.writeDeletionLocked(key)
	if err != nil {
		return err
	}
	c.aliveBytes -= int64(len(mp.DataPtr))
	c.recordDeleteLocked(mp.DatafileID, int64(len(mp.DataPtr)), journalFID)
	c.notifySecondaryRemove(key)
	c.removeIndexLocked(key)
	logger.Debug("primary: cap constraint evicted key=%q", key)
	return nil
}
