package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

type stubLister struct {
	channels []models.ChannelMeta
	err      error
	calls    int
}

func (s *stubLister) ListChannels(ctx context.Context) ([]models.ChannelMeta, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.channels, nil
}

func workspace() []models.ChannelMeta {
	return []models.ChannelMeta{
		{ID: "C0000001", Name: "random", IsMember: true},
		{ID: "C0000002", Name: "general", IsMember: true},
		{ID: "C0000003", Name: "general-eu", IsMember: false},
		{ID: "C0000004", Name: "incidents", IsMember: false},
	}
}

func TestResolveExplicitIDsSkipLookup(t *testing.T) {
	lister := &stubLister{channels: workspace()}
	r := New(lister, []string{"C1234567", "D7654321"}, nil, 0)

	channels, err := r.Resolve(context.Background())

	assert.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, "C1234567", channels[0].ID)
	assert.Equal(t, 0, lister.calls, "ID-shaped entries must not hit the API")
}

func TestResolveExplicitNamesAreLookedUp(t *testing.T) {
	lister := &stubLister{channels: workspace()}
	r := New(lister, []string{"General", "no-such-channel", "C1234567"}, nil, 0)

	channels, err := r.Resolve(context.Background())

	assert.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, "C1234567", channels[0].ID)
	assert.Equal(t, "C0000002", channels[1].ID, "name resolved case-insensitively")
	assert.Equal(t, 1, lister.calls)
}

func TestResolveExplicitAllUnresolvableFails(t *testing.T) {
	r := New(&stubLister{channels: workspace()}, []string{"ghost"}, nil, 0)

	_, err := r.Resolve(context.Background())

	assert.Error(t, err)
	assert.Empty(t, r.Channels())
}

func TestResolveExplicitLookupErrorFails(t *testing.T) {
	r := New(&stubLister{err: errors.New("boom")}, []string{"general"}, nil, 0)

	_, err := r.Resolve(context.Background())

	assert.Error(t, err)
}

func TestDiscoveryFiltersSortsAndCaps(t *testing.T) {
	r := New(&stubLister{channels: workspace()}, nil, NameContains("general"), 0)

	channels, err := r.Resolve(context.Background())

	assert.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, "general-eu", channels[1].Name)

	capped := New(&stubLister{channels: workspace()}, nil, NameContains("general"), 1)
	channels, err = capped.Resolve(context.Background())

	assert.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].Name)
}

func TestDiscoveryFallsBackToMemberChannels(t *testing.T) {
	r := New(&stubLister{channels: workspace()}, nil, NameContains("nomatch"), 0)

	channels, err := r.Resolve(context.Background())

	assert.NoError(t, err)
	assert.Len(t, channels, 2)
	for _, ch := range channels {
		assert.True(t, ch.IsMember)
	}
}

func TestDiscoveryEmptyWorkspaceFails(t *testing.T) {
	r := New(&stubLister{}, nil, nil, 0)

	_, err := r.Resolve(context.Background())

	assert.Error(t, err)
}

func TestRefreshKeepsPreviousSetOnFailure(t *testing.T) {
	lister := &stubLister{channels: workspace()}
	r := New(lister, nil, NameContains("general"), 0)

	_, err := r.Resolve(context.Background())
	assert.NoError(t, err)
	assert.Len(t, r.Channels(), 2)

	lister.err = errors.New("api down")
	assert.Error(t, r.Refresh(context.Background()))
	assert.Len(t, r.Channels(), 2, "previous set survives a failed refresh")

	lister.err = nil
	lister.channels = workspace()[:2]
	assert.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, r.Channels(), 1, "only general matches after the shrink")
}

func TestDiscoveryMode(t *testing.T) {
	assert.True(t, New(&stubLister{}, nil, nil, 0).Discovery())
	assert.False(t, New(&stubLister{}, []string{"general"}, nil, 0).Discovery())
}

func TestChannelsReturnsCopy(t *testing.T) {
	r := New(&stubLister{channels: workspace()}, nil, NameContains("general"), 0)
	_, err := r.Resolve(context.Background())
	assert.NoError(t, err)

	first := r.Channels()
	first[0].ID = "mutated"
	assert.Equal(t, "C0000002", r.Channels()[0].ID)
}
