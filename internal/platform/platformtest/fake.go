// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/modkit/modmail-relay/internal/platform"
)

// Fake is a concurrency-safe in-memory platform. Failure injection fields
// may be set before use; zero values mean every call succeeds.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Channels        []platform.ChannelInfo
	ChannelMessages map[string][]string
	DirectMessages  map[int64][]string
	Users           map[int64]platform.User

	// CreateDelay widens the race window between concurrent creators.
	CreateDelay time.Duration
	// CreateErrs is consumed one entry per CreateChannel call; a nil entry
	// lets that call succeed. Exhausted entries also succeed.
	CreateErrs     []error
	SendChannelErr map[string]error
	SendDirectErr  map[int64]error
	DeleteErr      map[string]error
	ListErr        error
	FetchErr       map[int64]error

	CreateCalls int
	CreateNames []string
}

// NewFake returns an empty fake platform.
func NewFake() *Fake {
	return &Fake{
		ChannelMessages: make(map[string][]string),
		DirectMessages:  make(map[int64][]string),
		Users:           make(map[int64]platform.User),
		SendChannelErr:  make(map[string]error),
		SendDirectErr:   make(map[int64]error),
		DeleteErr:       make(map[string]error),
		FetchErr:        make(map[int64]error),
	}
}

func (f *Fake) CreateChannel(ctx context.Context, in platform.CreateChannelInput) (platform.ChannelInfo, error) {
	f.mu.Lock()
	f.CreateCalls++
	f.CreateNames = append(f.CreateNames, in.Name)
	var injected error
	if len(f.CreateErrs) > 0 {
		injected = f.CreateErrs[0]
		f.CreateErrs = f.CreateErrs[1:]
	}
	delay := f.CreateDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return platform.ChannelInfo{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if injected != nil {
		return platform.ChannelInfo{}, injected
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ch := platform.ChannelInfo{
		ID:    "chan-" + strconv.Itoa(f.nextID),
		Name:  in.Name,
		Topic: in.Topic,
	}
	f.Channels = append(f.Channels, ch)
	return ch, nil
}

func (f *Fake) SendToChannel(ctx context.Context, channelID, text string, attachmentURLs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendChannelErr[channelID]; err != nil {
		return err
	}
	found := false
	for _, ch := range f.Channels {
		if ch.ID == channelID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: channel %s", platform.ErrNotFound, channelID)
	}
	content := text
	for _, u := range attachmentURLs {
		if content != "" {
			content += "\n"
		}
		content += u
	}
	f.ChannelMessages[channelID] = append(f.ChannelMessages[channelID], content)
	return nil
}

func (f *Fake) SendDirect(ctx context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendDirectErr[userID]; err != nil {
		return err
	}
	f.DirectMessages[userID] = append(f.DirectMessages[userID], text)
	return nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DeleteErr[channelID]; err != nil {
		return err
	}
	for i, ch := range f.Channels {
		if ch.ID == channelID {
			f.Channels = append(f.Channels[:i], f.Channels[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: channel %s", platform.ErrNotFound, channelID)
}

func (f *Fake) ListChannelsInCategory(ctx context.Context, workspaceID, categoryID string) ([]platform.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]platform.ChannelInfo, len(f.Channels))
	copy(out, f.Channels)
	return out, nil
}

func (f *Fake) FetchUser(ctx context.Context, userID int64) (platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FetchErr[userID]; err != nil {
		return platform.User{}, err
	}
	if u, ok := f.Users[userID]; ok {
		return u, nil
	}
	return platform.User{ID: userID, DisplayName: "user-" + strconv.FormatInt(userID, 10)}, nil
}

// ChannelByID returns a copy of the channel, if present.
func (f *Fake) ChannelByID(id string) (platform.ChannelInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return platform.ChannelInfo{}, false
}
