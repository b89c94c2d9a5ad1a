package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/auth"
	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/events"
	"github.com/modkit/modmail-relay/internal/observability"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/platform/platformtest"
	"github.com/modkit/modmail-relay/internal/repository"
	"github.com/modkit/modmail-relay/internal/worker"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

type testEnv struct {
	fake      *platformtest.Fake
	relay     *RelayService
	lifecycle *LifecycleService
	broadcast *BroadcastService
	closer    *worker.CloseScheduler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Routing: config.RoutingConfig{
			WorkspaceID: "guild-1",
			CategoryID:  "cat-1",
			StaffRoleID: "role-staff",
			OwnerIDs:    []int64{1},
		},
		Lifecycle: config.LifecycleConfig{CancelCloseOnActivity: true, MaxCloseDelaySeconds: 3600},
	}
	if mutate != nil {
		mutate(cfg)
	}

	fake := platformtest.NewFake()
	logger := zap.NewNop()
	directory := repository.NewTicketDirectory(fake, cfg.Routing, 900, logger)
	authorizer := auth.NewAuthorizer(cfg.Routing)
	closer := worker.NewCloseScheduler(logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	relay := NewRelayService(RelayDependencies{
		Directory:  directory,
		Platform:   fake,
		Authorizer: authorizer,
		Closer:     closer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Routing:    cfg.Routing,
		Lifecycle:  cfg.Lifecycle,
	})
	lifecycle := NewLifecycleService(LifecycleDependencies{
		Directory:  directory,
		Platform:   fake,
		Authorizer: authorizer,
		Closer:     closer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Routing:    cfg.Routing,
		Lifecycle:  cfg.Lifecycle,
	})
	broadcast := NewBroadcastService(BroadcastDependencies{
		Directory:  directory,
		Platform:   fake,
		Authorizer: authorizer,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     cfg.Broadcast,
	})
	t.Cleanup(closer.Stop)

	return &testEnv{fake: fake, relay: relay, lifecycle: lifecycle, broadcast: broadcast, closer: closer}
}

func staffInvocation(channelID, topic string) Invocation {
	return Invocation{
		InvokerID:      10,
		InvokerRoleIDs: []string{"role-staff"},
		WorkspaceID:    "guild-1",
		ChannelID:      channelID,
		ChannelName:    "modmail-x",
		ChannelTopic:   topic,
	}
}

func TestHandleInboundOpensTicket(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.relay.HandleInbound(context.Background(), InboundMessage{
		SenderID:          555,
		SenderDisplayName: "Jöhn Smith!",
		Body:              "hello staff",
	})
	require.NoError(t, err)

	require.Len(t, env.fake.Channels, 1)
	ch := env.fake.Channels[0]
	assert.Equal(t, "modmail-john-smith-555", ch.Name)
	assert.Equal(t, "555", ch.Topic)

	msgs := env.fake.ChannelMessages[ch.ID]
	require.Len(t, msgs, 2, "banner plus the relayed message")
	assert.Contains(t, msgs[0], "Modmail opened by")
	assert.Contains(t, msgs[1], "hello staff")
	assert.Contains(t, msgs[1], "Jöhn Smith!")

	// Acknowledgment follows the staff-side forward.
	require.Len(t, env.fake.DirectMessages[555], 1)
	assert.Contains(t, env.fake.DirectMessages[555][0], "sent to staff")
}

func TestHandleInboundReusesExistingTicket(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 7, SenderDisplayName: "a", Body: "one"}))
	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 7, SenderDisplayName: "a", Body: "two"}))

	require.Len(t, env.fake.Channels, 1)
	msgs := env.fake.ChannelMessages[env.fake.Channels[0].ID]
	require.Len(t, msgs, 3, "banner plus two relays")
}

func TestHandleInboundConcurrentFirstMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = env.relay.HandleInbound(context.Background(), InboundMessage{
				SenderID:          99,
				SenderDisplayName: "burst",
				Body:              "msg",
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, env.fake.CreateCalls, "only one channel may be created")
	require.Len(t, env.fake.Channels, 1)
	msgs := env.fake.ChannelMessages[env.fake.Channels[0].ID]
	assert.Len(t, msgs, n+1, "every message relayed into the single channel")
}

func TestHandleInboundIgnoresAutomatedSenders(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.relay.HandleInbound(context.Background(), InboundMessage{
		SenderID:    5,
		IsAutomated: true,
		Body:        "beep",
	}))
	assert.Empty(t, env.fake.Channels)
}

func TestHandleInboundAttachmentOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.relay.HandleInbound(context.Background(), InboundMessage{
		SenderID:          8,
		SenderDisplayName: "pics",
		AttachmentURLs:    []string{"https://cdn.example/a.png"},
	})
	require.NoError(t, err)
	require.Len(t, env.fake.Channels, 1)
	msgs := env.fake.ChannelMessages[env.fake.Channels[0].ID]
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "https://cdn.example/a.png")
}

func TestHandleInboundAckFailureSwallowed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.SendDirectErr[12] = platform.ErrForbidden

	err := env.relay.HandleInbound(context.Background(), InboundMessage{
		SenderID:          12,
		SenderDisplayName: "blocked",
		Body:              "still works",
	})
	require.NoError(t, err, "ack failure must not fail the relay")
	require.Len(t, env.fake.Channels, 1)
	assert.Contains(t, env.fake.ChannelMessages[env.fake.Channels[0].ID][1], "still works")
}

func TestHandleInboundWorkspaceUnreachable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.ListErr = errors.New("down")

	err := env.relay.HandleInbound(context.Background(), InboundMessage{
		SenderID:          3,
		SenderDisplayName: "x",
		Body:              "hi",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationUnavailable))
	// The user got an apology instead of silence.
	require.Len(t, env.fake.DirectMessages[3], 1)
	assert.Contains(t, env.fake.DirectMessages[3][0], "Sorry")
}

func TestHandleInboundCancelsPendingClose(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "a", Body: "hi"}))
	ch := env.fake.Channels[0]
	_, err := env.lifecycle.DelayedClose(ctx, staffInvocation(ch.ID, ch.Topic), 60)
	require.NoError(t, err)
	require.True(t, env.closer.Pending(555))

	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "a", Body: "wait!"}))
	assert.False(t, env.closer.Pending(555), "user activity must cancel the pending close")
}

func TestHandleInboundKeepsPendingCloseWhenDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Lifecycle.CancelCloseOnActivity = false
	})
	ctx := context.Background()

	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 556, SenderDisplayName: "b", Body: "hi"}))
	ch := env.fake.Channels[0]
	_, err := env.lifecycle.DelayedClose(ctx, staffInvocation(ch.ID, ch.Topic), 60)
	require.NoError(t, err)

	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 556, SenderDisplayName: "b", Body: "more"}))
	assert.True(t, env.closer.Pending(556), "activity must not cancel when disabled")
}

func TestReplyDeliversToTicketUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "c", Body: "hi"}))
	ch := env.fake.Channels[0]

	confirm, err := env.relay.Reply(ctx, staffInvocation(ch.ID, ch.Topic), "we are on it")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(confirm, "✅"))

	dms := env.fake.DirectMessages[555]
	require.NotEmpty(t, dms)
	last := dms[len(dms)-1]
	assert.Contains(t, last, "Staff reply")
	assert.Contains(t, last, "we are on it")
	// Nobody else received anything.
	for id, msgs := range env.fake.DirectMessages {
		if id != 555 && len(msgs) > 0 {
			t.Fatalf("unexpected delivery to user %d", id)
		}
	}
}

func TestReplyRejectsNonStaff(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "c", Body: "hi"}))
	ch := env.fake.Channels[0]
	dmsBefore := len(env.fake.DirectMessages[555])

	inv := staffInvocation(ch.ID, ch.Topic)
	inv.InvokerID = 42
	inv.InvokerRoleIDs = []string{"role-random"}
	_, err := env.relay.Reply(ctx, inv, "should not send")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorizationDenied))
	assert.Len(t, env.fake.DirectMessages[555], dmsBefore, "no direct message may be sent")
}

func TestReplyRejectsNonTicketTopic(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.relay.Reply(context.Background(), staffInvocation("chan-1", "hello"), "hi")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotATicketChannel))
}

func TestReplyRejectsOutsideWorkspace(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := staffInvocation("chan-1", "555")
	inv.WorkspaceID = "guild-other"
	_, err := env.relay.Reply(context.Background(), inv, "hi")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotATicketChannel))
}

func TestReplyDeliveryFailureKeepsTicket(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "c", Body: "hi"}))
	ch := env.fake.Channels[0]
	env.fake.SendDirectErr[555] = platform.ErrForbidden

	_, err := env.relay.Reply(ctx, staffInvocation(ch.ID, ch.Topic), "hello?")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeliveryFailed))

	_, stillThere := env.fake.ChannelByID(ch.ID)
	assert.True(t, stillThere, "delivery failure must not mutate ticket state")
}

func TestReplyUserNoLongerResolves(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.relay.HandleInbound(ctx, InboundMessage{SenderID: 555, SenderDisplayName: "c", Body: "hi"}))
	ch := env.fake.Channels[0]
	env.fake.FetchErr[555] = errors.New("unknown user")

	_, err := env.relay.Reply(ctx, staffInvocation(ch.ID, ch.Topic), "hello?")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeliveryFailed))
}
