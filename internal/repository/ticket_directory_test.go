package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/domain"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/platform/platformtest"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

func testRouting() config.RoutingConfig {
	return config.RoutingConfig{
		WorkspaceID: "guild-1",
		CategoryID:  "cat-1",
		StaffRoleID: "role-staff",
	}
}

func newDirectory(fake *platformtest.Fake) TicketDirectory {
	return NewTicketDirectory(fake, testRouting(), 900, zap.NewNop())
}

func TestCreateThenFindOpen(t *testing.T) {
	fake := platformtest.NewFake()
	dir := newDirectory(fake)

	ticket, err := dir.Create(context.Background(), domain.ExternalUser{ID: 555, DisplayName: "Jöhn Smith!"})
	require.NoError(t, err)
	assert.Equal(t, "modmail-john-smith-555", ticket.ChannelName)
	assert.Equal(t, domain.TicketStateOpen, ticket.State)

	found, err := dir.FindOpen(context.Background(), 555)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ticket.ChannelID, found.ChannelID)

	missing, err := dir.FindOpen(context.Background(), 556)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateIdempotentUnderConcurrency(t *testing.T) {
	fake := platformtest.NewFake()
	fake.CreateDelay = 20 * time.Millisecond
	dir := newDirectory(fake)

	const n = 16
	var wg sync.WaitGroup
	results := make([]*domain.Ticket, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = dir.Create(context.Background(), domain.ExternalUser{ID: 42, DisplayName: "dup"})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, fake.CreateCalls, "exactly one channel may be created")
	channelID := results[0].ChannelID
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, channelID, results[i].ChannelID, "all callers must share the one channel")
	}
}

func TestCreateDistinctUsersNoCrossAssignment(t *testing.T) {
	fake := platformtest.NewFake()
	fake.CreateDelay = 10 * time.Millisecond
	dir := newDirectory(fake)

	var wg sync.WaitGroup
	tickets := make(map[int64]*domain.Ticket)
	var mu sync.Mutex
	for _, id := range []int64{1001, 1002} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ticket, err := dir.Create(context.Background(), domain.ExternalUser{ID: id, DisplayName: "someone"})
			require.NoError(t, err)
			mu.Lock()
			tickets[id] = ticket
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	require.Equal(t, 2, fake.CreateCalls)
	ch1, ok := fake.ChannelByID(tickets[1001].ChannelID)
	require.True(t, ok)
	ch2, ok := fake.ChannelByID(tickets[1002].ChannelID)
	require.True(t, ok)
	assert.Equal(t, "1001", ch1.Topic)
	assert.Equal(t, "1002", ch2.Topic)
}

func TestCreateForbidden(t *testing.T) {
	fake := platformtest.NewFake()
	fake.CreateErrs = []error{platform.ErrForbidden}
	dir := newDirectory(fake)

	_, err := dir.Create(context.Background(), domain.ExternalUser{ID: 7, DisplayName: "blocked"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePermissionDenied))
}

func TestCreateUnknownFailureFallsBackToIDName(t *testing.T) {
	fake := platformtest.NewFake()
	fake.CreateErrs = []error{errors.New("boom")}
	dir := newDirectory(fake)

	ticket, err := dir.Create(context.Background(), domain.ExternalUser{ID: 88, DisplayName: "weird name"})
	require.NoError(t, err)
	assert.Equal(t, "modmail-88", ticket.ChannelName)
	assert.Equal(t, []string{"modmail-weird-name-88", "modmail-88"}, fake.CreateNames)
}

func TestCreateWhenWorkspaceUnreachable(t *testing.T) {
	fake := platformtest.NewFake()
	fake.ListErr = errors.New("gateway timeout")
	dir := newDirectory(fake)

	_, err := dir.Create(context.Background(), domain.ExternalUser{ID: 5, DisplayName: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationUnavailable))
}

func TestCloseDeletesChannel(t *testing.T) {
	fake := platformtest.NewFake()
	dir := newDirectory(fake)

	ticket, err := dir.Create(context.Background(), domain.ExternalUser{ID: 12, DisplayName: "bye"})
	require.NoError(t, err)

	require.NoError(t, dir.Close(context.Background(), ticket, "resolved"))
	assert.Equal(t, domain.TicketStateClosed, ticket.State)

	found, err := dir.FindOpen(context.Background(), 12)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCloseAlreadyGoneIsHandled(t *testing.T) {
	fake := platformtest.NewFake()
	dir := newDirectory(fake)

	ticket := &domain.Ticket{ExternalUserID: 3, ChannelID: "chan-missing"}
	err := dir.Close(context.Background(), ticket, "cleanup")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListOpenSkipsNonTicketChannels(t *testing.T) {
	fake := platformtest.NewFake()
	dir := newDirectory(fake)

	_, err := dir.Create(context.Background(), domain.ExternalUser{ID: 21, DisplayName: "a"})
	require.NoError(t, err)
	fake.Channels = append(fake.Channels, platform.ChannelInfo{ID: "chan-x", Name: "general", Topic: "hello"})

	tickets, err := dir.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, int64(21), tickets[0].ExternalUserID)
}

func TestFindChannelByName(t *testing.T) {
	fake := platformtest.NewFake()
	dir := newDirectory(fake)

	created, err := dir.Create(context.Background(), domain.ExternalUser{ID: 30, DisplayName: "orphan"})
	require.NoError(t, err)

	ch, err := dir.FindChannelByName(context.Background(), created.ChannelName)
	require.NoError(t, err)
	assert.Equal(t, created.ChannelID, ch.ID)

	_, err = dir.FindChannelByName(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
