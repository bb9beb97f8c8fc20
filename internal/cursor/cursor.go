package cursor

import (
	"sort"
	"sync"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// Cursor tracks per-channel read positions for dedup across overlapping
// fetches. A position is a watermark timestamp plus the set of message IDs
// already seen at exactly that timestamp: timestamps are monotonic
// non-decreasing per channel but not unique, so the ID set disambiguates the
// boundary when a fetch re-returns it.
type Cursor struct {
	mu     sync.Mutex
	states map[string]*channelState
}

type channelState struct {
	hasWatermark bool
	watermark    float64
	boundaryIDs  map[string]struct{}
	errCount     int
}

// ChannelSnapshot is a read-only view of one channel's state.
type ChannelSnapshot struct {
	ChannelID         string  `json:"channel_id"`
	Tracked           bool    `json:"tracked"`
	Watermark         float64 `json:"watermark"`
	BoundaryIDs       int     `json:"boundary_ids"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
}

// New creates an empty cursor
func New() *Cursor {
	return &Cursor{states: make(map[string]*channelState)}
}

// Since returns the channel's watermark, or false if the channel has not had
// a successful poll yet.
func (c *Cursor) Since(channelID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[channelID]
	if st == nil || !st.hasWatermark {
		return 0, false
	}
	return st.watermark, true
}

// Filter drops already-seen messages and returns the survivors sorted
// ascending by (timestamp, id). Messages below the watermark are dropped; at
// the watermark, messages whose ID is in the boundary set are dropped.
//
// The first Filter call for a channel initializes its watermark to pollStart,
// so a freshly observed channel never replays history from before the agent
// started watching it.
func (c *Cursor) Filter(channelID string, pollStart float64, fetched []models.Message) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ensure(channelID)
	if !st.hasWatermark {
		st.hasWatermark = true
		st.watermark = pollStart
		st.boundaryIDs = make(map[string]struct{})
	}

	fresh := make([]models.Message, 0, len(fetched))
	for _, msg := range fetched {
		if msg.Timestamp < st.watermark {
			continue
		}
		if msg.Timestamp == st.watermark {
			if _, seen := st.boundaryIDs[msg.ID]; seen {
				continue
			}
		}
		fresh = append(fresh, msg)
	}

	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].Timestamp != fresh[j].Timestamp {
			return fresh[i].Timestamp < fresh[j].Timestamp
		}
		return fresh[i].ID < fresh[j].ID
	})
	return fresh
}

// Advance moves the channel's watermark to the maximum timestamp in
// processed and records the IDs observed at that timestamp. When the maximum
// equals the current watermark the IDs are merged into the existing boundary
// set; replacing it would resurface earlier boundary messages. The watermark
// never moves backwards, and an empty processed slice changes nothing.
func (c *Cursor) Advance(channelID string, processed []models.Message) {
	if len(processed) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ensure(channelID)

	maxTS := processed[0].Timestamp
	for _, msg := range processed[1:] {
		if msg.Timestamp > maxTS {
			maxTS = msg.Timestamp
		}
	}
	if st.hasWatermark && maxTS < st.watermark {
		return
	}

	ids := make(map[string]struct{})
	for _, msg := range processed {
		if msg.Timestamp == maxTS {
			ids[msg.ID] = struct{}{}
		}
	}

	if st.hasWatermark && maxTS == st.watermark {
		for id := range ids {
			st.boundaryIDs[id] = struct{}{}
		}
	} else {
		st.boundaryIDs = ids
	}
	st.watermark = maxTS
	st.hasWatermark = true
}

// RecordError increments the channel's consecutive error counter and returns
// the new count.
func (c *Cursor) RecordError(channelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ensure(channelID)
	st.errCount++
	return st.errCount
}

// ResetErrors clears the channel's consecutive error counter after a fully
// successful cycle.
func (c *Cursor) ResetErrors(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.states[channelID]; st != nil {
		st.errCount = 0
	}
}

// Snapshot returns a stable view of all tracked channels, sorted by ID.
func (c *Cursor) Snapshot() []ChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ChannelSnapshot, 0, len(c.states))
	for id, st := range c.states {
		out = append(out, ChannelSnapshot{
			ChannelID:         id,
			Tracked:           st.hasWatermark,
			Watermark:         st.watermark,
			BoundaryIDs:       len(st.boundaryIDs),
			ConsecutiveErrors: st.errCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

func (c *Cursor) ensure(channelID string) *channelState {
	st := c.states[channelID]
	if st == nil {
		st = &channelState{}
		c.states[channelID] = st
	}
	return st
}
