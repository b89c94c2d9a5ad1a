package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/modkit/modmail-relay/internal/config"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Channel capability bits used in permission overwrites.
const (
	permViewChannel        = 1 << 10
	permSendMessages       = 1 << 11
	permReadMessageHistory = 1 << 16
)

// Guild text channel type.
const channelTypeText = 0

// RESTClient implements Client against the platform HTTP API.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient builds a client from platform configuration.
func NewRESTClient(cfg config.PlatformConfig) *RESTClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RESTClient{
		baseURL: baseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

type restChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	ParentID string `json:"parent_id"`
	Type     int    `json:"type"`
}

type restUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

type restOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

// CreateChannel creates a text channel under the routing category.
func (c *RESTClient) CreateChannel(ctx context.Context, in CreateChannelInput) (ChannelInfo, error) {
	payload := map[string]any{
		"name":                  in.Name,
		"type":                  channelTypeText,
		"parent_id":             in.CategoryID,
		"topic":                 in.Topic,
		"permission_overwrites": encodeOverwrites(in.Overwrites),
	}
	var created restChannel
	headers := map[string]string{}
	if in.Reason != "" {
		headers["X-Audit-Log-Reason"] = in.Reason
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/channels", in.WorkspaceID), payload, headers, &created)
	if err != nil {
		return ChannelInfo{}, err
	}
	return ChannelInfo{ID: created.ID, Name: created.Name, Topic: created.Topic}, nil
}

// SendToChannel posts a message into a channel. Attachment URLs are appended
// as plain lines so attachment-only relays are never empty sends.
func (c *RESTClient) SendToChannel(ctx context.Context, channelID, text string, attachmentURLs []string) error {
	content := text
	for _, u := range attachmentURLs {
		if content != "" {
			content += "\n"
		}
		content += u
	}
	payload := map[string]any{"content": content}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), payload, nil, nil)
}

// SendDirect opens (or reuses) the user's DM channel and posts into it.
func (c *RESTClient) SendDirect(ctx context.Context, userID int64, text string) error {
	var dm restChannel
	open := map[string]any{"recipient_id": strconv.FormatInt(userID, 10)}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", open, nil, &dm); err != nil {
		return err
	}
	payload := map[string]any{"content": text}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", dm.ID), payload, nil, nil)
}

// DeleteChannel removes a channel.
func (c *RESTClient) DeleteChannel(ctx context.Context, channelID, reason string) error {
	headers := map[string]string{}
	if reason != "" {
		headers["X-Audit-Log-Reason"] = reason
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s", channelID), nil, headers, nil)
}

// ListChannelsInCategory returns the text channels under a category.
func (c *RESTClient) ListChannelsInCategory(ctx context.Context, workspaceID, categoryID string) ([]ChannelInfo, error) {
	var all []restChannel
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/channels", workspaceID), nil, nil, &all); err != nil {
		return nil, err
	}
	out := make([]ChannelInfo, 0, len(all))
	for _, ch := range all {
		if ch.ParentID != categoryID || ch.Type != channelTypeText {
			continue
		}
		out = append(out, ChannelInfo{ID: ch.ID, Name: ch.Name, Topic: ch.Topic})
	}
	return out, nil
}

// FetchUser resolves a user id to its current identity.
func (c *RESTClient) FetchUser(ctx context.Context, userID int64) (User, error) {
	var u restUser
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, nil, &u); err != nil {
		return User{}, err
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		id = userID
	}
	return User{ID: id, DisplayName: name}, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload any, headers map[string]string, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		switch res.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s %s: %s", ErrForbidden, method, path, string(msg))
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
		default:
			return fmt.Errorf("platform: %s %s: status %d: %s", method, path, res.StatusCode, string(msg))
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode %s %s: %w", method, path, err)
	}
	return nil
}

// Pace waits out the send window between rate-limited fan-out calls,
// honoring cancellation.
func Pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func encodeOverwrites(src []Overwrite) []restOverwrite {
	out := make([]restOverwrite, 0, len(src))
	for _, ow := range src {
		var allow, deny int64
		setBit := func(grant bool, bit int64) {
			if grant {
				allow |= bit
			} else {
				deny |= bit
			}
		}
		setBit(ow.CanView, permViewChannel)
		setBit(ow.CanSend, permSendMessages)
		setBit(ow.CanReadHistory, permReadMessageHistory)

		targetType := 0
		if ow.TargetIsMember {
			targetType = 1
		}
		out = append(out, restOverwrite{
			ID:    ow.TargetID,
			Type:  targetType,
			Allow: strconv.FormatInt(allow, 10),
			Deny:  strconv.FormatInt(deny, 10),
		})
	}
	return out
}
