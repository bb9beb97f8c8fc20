package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// ChannelLister is the part of the Slack client the registry needs.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]models.ChannelMeta, error)
}

// Predicate selects channels during discovery.
type Predicate func(models.ChannelMeta) bool

// NameContains returns a predicate matching channels whose name contains sub,
// case-insensitively.
func NameContains(sub string) Predicate {
	sub = strings.ToLower(sub)
	return func(ch models.ChannelMeta) bool {
		return strings.Contains(strings.ToLower(ch.Name), sub)
	}
}

var channelIDPattern = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

// Registry resolves and caches the set of channels the agent monitors.
// With an explicit channel list it resolves names to IDs once; without one it
// discovers channels through the predicate. A failed refresh keeps the
// previously resolved set so polling is never left without channels.
type Registry struct {
	lister      ChannelLister
	explicit    []string
	predicate   Predicate
	maxChannels int

	mu       sync.RWMutex
	channels []models.ChannelMeta
}

// New creates a registry. explicit may be empty, which enables discovery mode.
func New(lister ChannelLister, explicit []string, predicate Predicate, maxChannels int) *Registry {
	if predicate == nil {
		predicate = NameContains("general")
	}
	return &Registry{
		lister:      lister,
		explicit:    explicit,
		predicate:   predicate,
		maxChannels: maxChannels,
	}
}

// Discovery reports whether the registry selects channels by discovery rather
// than an explicit list. Discovery mode is the one worth refreshing on a timer.
func (r *Registry) Discovery() bool {
	return len(r.explicit) == 0
}

// Resolve computes the monitored channel set and swaps it in. The previous set
// is kept untouched on error, so callers can treat a failed Resolve after
// startup as a soft failure.
func (r *Registry) Resolve(ctx context.Context) ([]models.ChannelMeta, error) {
	var (
		resolved []models.ChannelMeta
		err      error
	)
	if len(r.explicit) > 0 {
		resolved, err = r.resolveExplicit(ctx)
	} else {
		resolved, err = r.discover(ctx)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.channels = resolved
	r.mu.Unlock()

	return resolved, nil
}

// Refresh re-runs resolution, logging and keeping the previous set on failure.
func (r *Registry) Refresh(ctx context.Context) error {
	channels, err := r.Resolve(ctx)
	if err != nil {
		logrus.Warnf("Channel refresh failed, keeping previous channel set: %v", err)
		return err
	}

	logrus.WithField("channels", len(channels)).Debug("Channel set refreshed")
	return nil
}

// Channels returns a copy of the current channel set.
func (r *Registry) Channels() []models.ChannelMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ChannelMeta, len(r.channels))
	copy(out, r.channels)
	return out
}

func (r *Registry) resolveExplicit(ctx context.Context) ([]models.ChannelMeta, error) {
	resolved := make([]models.ChannelMeta, 0, len(r.explicit))
	var names []string
	for _, entry := range r.explicit {
		// Entries that already look like channel IDs need no lookup.
		if channelIDPattern.MatchString(entry) {
			resolved = append(resolved, models.ChannelMeta{ID: entry, Name: entry, IsMember: true})
			continue
		}
		names = append(names, entry)
	}

	if len(names) > 0 {
		all, err := r.lister.ListChannels(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving channel names: %w", err)
		}

		byName := make(map[string]models.ChannelMeta, len(all))
		for _, ch := range all {
			byName[strings.ToLower(ch.Name)] = ch
		}

		for _, name := range names {
			ch, ok := byName[strings.ToLower(name)]
			if !ok {
				logrus.Warnf("Configured channel %q not found in workspace, skipping", name)
				continue
			}
			resolved = append(resolved, ch)
		}
	}

	if len(resolved) == 0 {
		return nil, fmt.Errorf("none of the configured channels could be resolved")
	}
	return resolved, nil
}

func (r *Registry) discover(ctx context.Context) ([]models.ChannelMeta, error) {
	all, err := r.lister.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering channels: %w", err)
	}

	var matched []models.ChannelMeta
	for _, ch := range all {
		if r.predicate(ch) {
			matched = append(matched, ch)
		}
	}

	if len(matched) == 0 {
		for _, ch := range all {
			if ch.IsMember {
				matched = append(matched, ch)
			}
		}
		if len(matched) > 0 {
			logrus.Warnf("No channels matched the discovery filter, falling back to %d joined channels", len(matched))
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("channel discovery found no channels to monitor")
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if r.maxChannels > 0 && len(matched) > r.maxChannels {
		matched = matched[:r.maxChannels]
	}
	return matched, nil
}
