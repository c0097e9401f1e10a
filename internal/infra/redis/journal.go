package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/quangdm/partake/internal/core/domain"
)

// journalTTL bounds how long a flow's event trail is kept. A flow either
// terminates well within this window or is resumed through Restore, which
// starts a new run.
const journalTTL = 7 * 24 * time.Hour

func journalKey(runID string) string {
	return fmt.Sprintf("flow_events:%s", runID)
}

// Record appends a phase transition to the run's event trail. Implements
// sale.Journal.
func (c *Client) Record(ctx context.Context, runID string, phase domain.Phase) error {
	key := journalKey(runID)
	entry := fmt.Sprintf("%s@%d", phase, time.Now().UnixMilli())

	if err := c.rdb.RPush(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	if err := c.rdb.Expire(ctx, key, journalTTL).Err(); err != nil {
		return fmt.Errorf("expire failed: %w", err)
	}
	return nil
}

// Events returns the recorded phase trail for a run, oldest first.
func (c *Client) Events(ctx context.Context, runID string) ([]string, error) {
	return c.rdb.LRange(ctx, journalKey(runID), 0, -1).Result()
}
