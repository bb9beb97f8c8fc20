package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

func msg(id string, ts float64) models.Message {
	return models.Message{ID: id, ChannelID: "C1", Timestamp: ts, Text: "hello"}
}

func TestFilterInitializesWatermarkAtPollStart(t *testing.T) {
	c := New()

	_, ok := c.Since("C1")
	assert.False(t, ok, "untracked channel should have no watermark")

	fresh := c.Filter("C1", 100.0, []models.Message{msg("old", 99.5), msg("new", 100.5)})

	assert.Equal(t, []models.Message{msg("new", 100.5)}, fresh,
		"history from before the first poll must not replay")

	wm, ok := c.Since("C1")
	assert.True(t, ok)
	assert.Equal(t, 100.0, wm)
}

func TestFilterDropsBelowWatermark(t *testing.T) {
	c := New()
	c.Filter("C1", 50.0, nil)
	c.Advance("C1", []models.Message{msg("m1", 100.0)})

	fresh := c.Filter("C1", 200.0, []models.Message{
		msg("stale", 99.9),
		msg("m2", 105.0),
	})

	assert.Equal(t, []models.Message{msg("m2", 105.0)}, fresh)
}

func TestFilterDropsSeenBoundaryIDs(t *testing.T) {
	c := New()
	c.Filter("C1", 50.0, nil)
	c.Advance("C1", []models.Message{msg("m1", 100.0)})

	fresh := c.Filter("C1", 200.0, []models.Message{
		msg("m1", 100.0), // refetched boundary message
		msg("m2", 100.0), // new message sharing the boundary timestamp
	})

	assert.Equal(t, []models.Message{msg("m2", 100.0)}, fresh)
}

func TestFilterSortsByTimestampThenID(t *testing.T) {
	c := New()

	fresh := c.Filter("C1", 10.0, []models.Message{
		msg("b", 100.0),
		msg("a", 100.0),
		msg("z", 50.0),
	})

	assert.Equal(t, []string{"z", "a", "b"}, ids(fresh),
		"ties on timestamp must break deterministically by ID")
}

func TestFilterAdvanceIdempotence(t *testing.T) {
	c := New()
	batch := []models.Message{
		msg("m1", 100.0),
		msg("m2", 100.0),
		msg("m3", 105.0),
	}

	fresh := c.Filter("C1", 90.0, batch)
	assert.Len(t, fresh, 3)

	c.Advance("C1", fresh)

	again := c.Filter("C1", 200.0, batch)
	assert.Empty(t, again, "refiltering a processed batch must return nothing")
}

func TestAdvanceEmptyBatchIsNoOp(t *testing.T) {
	c := New()
	c.Filter("C1", 100.0, nil)

	c.Advance("C1", nil)

	wm, ok := c.Since("C1")
	assert.True(t, ok)
	assert.Equal(t, 100.0, wm)
}

func TestAdvanceNeverRegresses(t *testing.T) {
	c := New()
	c.Filter("C1", 50.0, nil)
	c.Advance("C1", []models.Message{msg("m1", 105.0)})

	c.Advance("C1", []models.Message{msg("late", 103.0)})

	wm, _ := c.Since("C1")
	assert.Equal(t, 105.0, wm)

	fresh := c.Filter("C1", 200.0, []models.Message{msg("m1", 105.0), msg("m2", 106.0)})
	assert.Equal(t, []string{"m2"}, ids(fresh), "boundary set must survive a stale Advance")
}

func TestAdvanceMergesBoundaryAtEqualTimestamp(t *testing.T) {
	c := New()
	c.Filter("C1", 50.0, nil)
	c.Advance("C1", []models.Message{msg("a", 100.0)})

	// A later batch lands entirely on the existing watermark.
	c.Advance("C1", []models.Message{msg("b", 100.0)})

	fresh := c.Filter("C1", 200.0, []models.Message{msg("a", 100.0), msg("b", 100.0)})
	assert.Empty(t, fresh, "both boundary IDs must be remembered")
}

func TestPartialBatchResurfacesRemainder(t *testing.T) {
	c := New()
	batch := []models.Message{
		msg("m1", 101.0),
		msg("m2", 102.0),
		msg("m3", 103.0),
	}

	fresh := c.Filter("C1", 100.0, batch)
	assert.Len(t, fresh, 3)

	// Dispatch failed on m2: only the processed prefix advances.
	c.Advance("C1", fresh[:1])

	retry := c.Filter("C1", 200.0, batch)
	assert.Equal(t, []string{"m2", "m3"}, ids(retry),
		"unprocessed messages must re-surface in order")
}

func TestErrorCounting(t *testing.T) {
	c := New()

	assert.Equal(t, 1, c.RecordError("C1"))
	assert.Equal(t, 2, c.RecordError("C1"))

	snap := c.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].ConsecutiveErrors)
	assert.False(t, snap[0].Tracked, "errors before the first successful poll leave the channel untracked")

	c.ResetErrors("C1")
	snap = c.Snapshot()
	assert.Equal(t, 0, snap[0].ConsecutiveErrors)
}

func TestSnapshotSortedByChannel(t *testing.T) {
	c := New()
	c.Filter("C2", 10.0, nil)
	c.Filter("C1", 20.0, nil)
	c.Advance("C1", []models.Message{msg("m1", 25.0)})

	snap := c.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "C1", snap[0].ChannelID)
	assert.Equal(t, 25.0, snap[0].Watermark)
	assert.Equal(t, 1, snap[0].BoundaryIDs)
	assert.Equal(t, "C2", snap[1].ChannelID)
	assert.True(t, snap[1].Tracked)
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
