package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memberpass-be/pkg/roles"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDirectory map[uuid.UUID]string

func (d staticDirectory) PlatformUserId(ctx context.Context, memberId uuid.UUID) (string, error) {
	if id, ok := d[memberId]; ok {
		return id, nil
	}
	return "", roles.ErrNotLinked
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, uuid.UUID) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	member := uuid.New()
	return NewClient(srv.URL, "bot-token", staticDirectory{member: "42"}), member
}

func TestGrantRoleSuccess(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	client, member := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.GrantRole(context.Background(), "guild-1", member, "role-9")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/guilds/guild-1/members/42/roles/role-9", gotPath)
	assert.Equal(t, "Bot bot-token", gotAuth)
}

func TestRateLimitIsTransientWithRetryAfter(t *testing.T) {
	client, member := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.25,"global":false}`))
	})

	err := client.GrantRole(context.Background(), "guild-1", member, "role-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, roles.ErrTransient))

	var re *roles.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 250*time.Millisecond, re.RetryAfter)
}

func TestServerErrorIsTransient(t *testing.T) {
	client, member := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.GrantRole(context.Background(), "guild-1", member, "role-9")
	assert.True(t, errors.Is(err, roles.ErrTransient))
}

func TestPermanentFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "missing permissions", status: http.StatusForbidden, body: `{"message":"Missing Permissions","code":50013}`, want: roles.ErrMissingPermission},
		{name: "unknown member", status: http.StatusNotFound, body: `{"message":"Unknown Member","code":10007}`, want: roles.ErrMemberNotInServer},
		{name: "unknown role", status: http.StatusNotFound, body: `{"message":"Unknown Role","code":10011}`, want: roles.ErrUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, member := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.GrantRole(context.Background(), "guild-1", member, "role-9")
			assert.True(t, errors.Is(err, roles.ErrPermanent))
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestUnlinkedMemberIsPermanent(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.GrantRole(context.Background(), "guild-1", uuid.New(), "role-9")
	assert.True(t, errors.Is(err, roles.ErrPermanent))
	assert.True(t, errors.Is(err, roles.ErrNotLinked))
	assert.Equal(t, 0, calls)
}

func TestRevokeOfDepartedMemberSucceeds(t *testing.T) {
	client, member := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Unknown Member","code":10007}`))
	})

	assert.NoError(t, client.RevokeRole(context.Background(), "guild-1", member, "role-9"))
}
