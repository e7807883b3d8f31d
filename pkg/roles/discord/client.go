package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"memberpass-be/pkg/roles"

	"github.com/google/uuid"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// Discord JSON error codes that will not go away on retry.
const (
	codeUnknownGuild       = 10004
	codeUnknownMember      = 10007
	codeUnknownRole        = 10011
	codeMissingAccess      = 50001
	codeMissingPermissions = 50013
)

// Directory resolves a member to the platform account they linked.
type Directory interface {
	PlatformUserId(ctx context.Context, memberId uuid.UUID) (string, error)
}

type Client struct {
	baseURL    string
	botToken   string
	directory  Directory
	httpClient *http.Client
}

func NewClient(baseURL, botToken string, directory Directory) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		botToken:   botToken,
		directory:  directory,
		httpClient: &http.Client{},
	}
}

type apiError struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func (c *Client) GrantRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.do(ctx, http.MethodPut, serverId, memberId, roleId)
}

func (c *Client) RevokeRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	err := c.do(ctx, http.MethodDelete, serverId, memberId, roleId)
	// a member who left the server no longer holds the role
	if errors.Is(err, roles.ErrMemberNotInServer) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, serverId string, memberId uuid.UUID, roleId string) error {
	userId, err := c.directory.PlatformUserId(ctx, memberId)
	if err != nil {
		if errors.Is(err, roles.ErrNotLinked) {
			return roles.Permanent("not_linked", 0, err)
		}
		return roles.Transient(0, 0, fmt.Errorf("resolve platform user: %w", err))
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.baseURL, serverId, userId, roleId)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return roles.Permanent("bad_request", 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	req.Header.Set("X-Audit-Log-Reason", "memberpass subscription")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return roles.Transient(0, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	return classify(resp, apiErr, string(body))
}

func classify(resp *http.Response, apiErr apiError, body string) error {
	cause := fmt.Errorf("discord api error (status %d, code %d): %s", resp.StatusCode, apiErr.Code, body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return roles.Transient(resp.StatusCode, retryAfter(resp, apiErr), cause)
	case resp.StatusCode >= 500:
		return roles.Transient(resp.StatusCode, 0, cause)
	}

	switch apiErr.Code {
	case codeUnknownMember:
		return roles.Permanent("member_not_in_server", resp.StatusCode, fmt.Errorf("%w: %v", roles.ErrMemberNotInServer, cause))
	case codeUnknownRole:
		return roles.Permanent("unknown_role", resp.StatusCode, fmt.Errorf("%w: %v", roles.ErrUnknownRole, cause))
	case codeMissingPermissions, codeMissingAccess, codeUnknownGuild:
		return roles.Permanent("missing_permission", resp.StatusCode, fmt.Errorf("%w: %v", roles.ErrMissingPermission, cause))
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return roles.Permanent("missing_permission", resp.StatusCode, fmt.Errorf("%w: %v", roles.ErrMissingPermission, cause))
	}
	return roles.Permanent("rejected", resp.StatusCode, cause)
}

func retryAfter(resp *http.Response, apiErr apiError) time.Duration {
	if apiErr.RetryAfter > 0 {
		return time.Duration(math.Ceil(apiErr.RetryAfter*1000)) * time.Millisecond
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(math.Ceil(secs*1000)) * time.Millisecond
		}
	}
	return time.Second
}
