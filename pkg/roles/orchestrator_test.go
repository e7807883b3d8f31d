package roles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu      sync.Mutex
	results []error
	calls   []entity.RoleAction
	delay   time.Duration
}

func (c *scriptedClient) next(ctx context.Context, action entity.RoleAction) error {
	c.mu.Lock()
	c.calls = append(c.calls, action)
	var err error
	if len(c.results) > 0 {
		err = c.results[0]
		c.results = c.results[1:]
	}
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *scriptedClient) GrantRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.next(ctx, entity.RoleActionGrant)
}

func (c *scriptedClient) RevokeRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.next(ctx, entity.RoleActionRevoke)
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func fastConfig() Config {
	return Config{
		CallTimeout:     200 * time.Millisecond,
		MaxTries:        4,
		MaxElapsed:      2 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func grant() Command {
	return Command{
		Id:       uuid.New(),
		MemberId: uuid.New(),
		ServerId: "guild-1",
		RoleId:   "role-1",
		Action:   entity.RoleActionGrant,
	}
}

func TestApplySucceedsFirstTry(t *testing.T) {
	client := &scriptedClient{}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	applied, err := o.Apply(context.Background(), grant())
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Attempts)
	assert.Equal(t, []entity.RoleAction{entity.RoleActionGrant}, client.calls)
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	client := &scriptedClient{results: []error{
		Transient(502, 0, errors.New("bad gateway")),
		Transient(429, 5*time.Millisecond, errors.New("slow down")),
		nil,
	}}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	applied, err := o.Apply(context.Background(), grant())
	require.NoError(t, err)
	assert.Equal(t, 3, applied.Attempts)
	assert.Equal(t, 3, client.callCount())
}

func TestApplyDoesNotRetryPermanentFailures(t *testing.T) {
	client := &scriptedClient{results: []error{
		Permanent("not_linked", 0, ErrNotLinked),
		nil,
	}}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	applied, err := o.Apply(context.Background(), grant())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.True(t, errors.Is(err, ErrNotLinked))
	assert.Equal(t, 1, applied.Attempts)
	assert.Equal(t, 1, client.callCount())
}

func TestApplyGivesUpAfterMaxTries(t *testing.T) {
	fail := Transient(503, 0, errors.New("unavailable"))
	client := &scriptedClient{results: []error{fail, fail, fail, fail, fail, fail}}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	applied, err := o.Apply(context.Background(), grant())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 4, applied.Attempts)
	assert.Equal(t, 4, client.callCount())
}

func TestApplyBoundsEachCall(t *testing.T) {
	cfg := fastConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.MaxTries = 2
	client := &scriptedClient{delay: time.Second}
	o := NewOrchestrator(client, NewLocalLocker(), cfg, logger.NewNopLogger())

	start := time.Now()
	_, err := o.Apply(context.Background(), grant())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestApplySerialisesSameMemberServer(t *testing.T) {
	var inFlight, maxInFlight int32
	client := &countingClient{inFlight: &inFlight, maxInFlight: &maxInFlight}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	cmd := grant()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cmd
			c.Id = uuid.New()
			if i%2 == 1 {
				c.Action = entity.RoleActionRevoke
			}
			_, err := o.Apply(context.Background(), c)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestApplyIfSkipsWithoutCalling(t *testing.T) {
	client := &scriptedClient{}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	applied, err := o.ApplyIf(context.Background(), grant(), func(ctx context.Context) (string, error) {
		return "subscription no longer active", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "subscription no longer active", applied.SkipReason)
	assert.Equal(t, 0, applied.Attempts)
	assert.Equal(t, 0, client.callCount())
}

func TestApplyIfPreconditionErrorIsTransient(t *testing.T) {
	client := &scriptedClient{}
	o := NewOrchestrator(client, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	_, err := o.ApplyIf(context.Background(), grant(), func(ctx context.Context) (string, error) {
		return "", errors.New("db down")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 0, client.callCount())
}

type countingClient struct {
	inFlight    *int32
	maxInFlight *int32
}

func (c *countingClient) track() error {
	n := atomic.AddInt32(c.inFlight, 1)
	for {
		m := atomic.LoadInt32(c.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(c.maxInFlight, m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(c.inFlight, -1)
	return nil
}

func (c *countingClient) GrantRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.track()
}

func (c *countingClient) RevokeRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.track()
}

func TestApplyAndSettleRunsUnderLock(t *testing.T) {
	locker := NewLocalLocker()
	o := NewOrchestrator(&scriptedClient{}, locker, fastConfig(), logger.NewNopLogger())
	cmd := grant()

	var lockErr error
	var got Applied
	_, err := o.ApplyAndSettle(context.Background(), cmd, nil, func(ctx context.Context, applied Applied, err error) {
		got = applied
		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, lockErr = locker.Lock(waitCtx, cmd.LockKey())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, lockErr, context.DeadlineExceeded)
	assert.Equal(t, 1, got.Attempts)

	unlock, err := locker.Lock(context.Background(), cmd.LockKey())
	require.NoError(t, err)
	unlock()
}

func TestApplyAndSettleReportsSkipsAndFailures(t *testing.T) {
	o := NewOrchestrator(&scriptedClient{results: []error{Permanent("unknown_role", 404, errors.New("no such role"))}}, NewLocalLocker(), fastConfig(), logger.NewNopLogger())

	var settledErr error
	_, err := o.ApplyAndSettle(context.Background(), grant(), nil, func(ctx context.Context, applied Applied, err error) {
		settledErr = err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(settledErr, ErrPermanent))

	var reason string
	_, err = o.ApplyAndSettle(context.Background(), grant(), func(ctx context.Context) (string, error) {
		return "already settled", nil
	}, func(ctx context.Context, applied Applied, err error) {
		reason = applied.SkipReason
	})
	require.NoError(t, err)
	assert.Equal(t, "already settled", reason)
}
