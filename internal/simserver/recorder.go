package simserver

import (
	"context"
	"encoding/json"

	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/monitoring"
)

// CycleStore persists cycle records.
type CycleStore interface {
	RecordCycle(db.CycleRecord) error
}

// Record subscribes to hub and stores every cycle summary until ctx is
// done or the hub is closed.
func Record(ctx context.Context, hub *Hub, store CycleStore) error {
	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-ch:
			if !ok {
				return nil
			}
			var rec db.CycleRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				monitoring.Opsf("recorder: bad cycle summary: %v", err)
				continue
			}
			if err := store.RecordCycle(rec); err != nil {
				monitoring.Opsf("recorder: %v", err)
			}
		}
	}
}
