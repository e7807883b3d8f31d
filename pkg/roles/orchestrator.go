package roles

import (
	"context"
	"fmt"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"

	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	// CallTimeout bounds a single call to the role API.
	CallTimeout time.Duration
	// MaxTries includes the first attempt.
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:     3 * time.Second,
		MaxTries:        4,
		MaxElapsed:      8 * time.Second,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Applied describes a finished role call. SkipReason is set when the
// precondition decided the call was no longer needed.
type Applied struct {
	Attempts   int
	Duration   time.Duration
	SkipReason string
}

// Precondition runs under the command's lock before any role call. A non-empty
// skip reason ends the command without calling the API.
type Precondition func(ctx context.Context) (skipReason string, err error)

// Orchestrator wraps the role client with a per-key lock, a per-call timeout
// and exponential backoff for transient failures.
type Orchestrator struct {
	client Client
	locker KeyLocker
	cfg    Config
	logger logger.ILogger
}

func NewOrchestrator(client Client, locker KeyLocker, cfg Config, log logger.ILogger) *Orchestrator {
	def := DefaultConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = def.MaxElapsed
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Orchestrator{client: client, locker: locker, cfg: cfg, logger: log}
}

// Apply runs the command until it succeeds, fails permanently or the retry
// budget runs out. The returned error wraps ErrPermanent or ErrTransient.
func (o *Orchestrator) Apply(ctx context.Context, cmd Command) (Applied, error) {
	return o.ApplyIf(ctx, cmd, nil)
}

// Settler records the result of a command before its lock is released, so a
// redelivery waiting on the same key observes it.
type Settler func(ctx context.Context, applied Applied, err error)

// ApplyIf is Apply with a check that sees the state as of holding the lock.
func (o *Orchestrator) ApplyIf(ctx context.Context, cmd Command, pre Precondition) (Applied, error) {
	return o.ApplyAndSettle(ctx, cmd, pre, nil)
}

// ApplyAndSettle is ApplyIf with settle run under the lock once the outcome is
// known. settle is not called when the lock cannot be acquired.
func (o *Orchestrator) ApplyAndSettle(ctx context.Context, cmd Command, pre Precondition, settle Settler) (applied Applied, err error) {
	start := time.Now()

	unlock, err := o.locker.Lock(ctx, cmd.LockKey())
	if err != nil {
		return Applied{}, Transient(0, 0, fmt.Errorf("acquire role lock: %w", err))
	}
	defer unlock()
	if settle != nil {
		defer func() { settle(ctx, applied, err) }()
	}

	if pre != nil {
		reason, err := pre(ctx)
		if err != nil {
			return Applied{Duration: time.Since(start)}, Transient(0, 0, fmt.Errorf("role precondition: %w", err))
		}
		if reason != "" {
			return Applied{Duration: time.Since(start), SkipReason: reason}, nil
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialInterval
	b.MaxInterval = o.cfg.MaxInterval

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()

		err := o.call(callCtx, cmd)
		if err == nil {
			return struct{}{}, nil
		}
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if d := retryAfterOf(err); d > 0 {
			return struct{}{}, fmt.Errorf("%w (%w)", err, &backoff.RetryAfterError{Duration: d})
		}
		return struct{}{}, err
	}

	notify := func(err error, next time.Duration) {
		o.logger.Warn("ROLE", "Role call failed, retrying", map[string]interface{}{
			"commandId": cmd.Id.String(),
			"action":    string(cmd.Action),
			"serverId":  cmd.ServerId,
			"roleId":    cmd.RoleId,
			"attempt":   attempts,
			"retryIn":   next.String(),
			"error":     err.Error(),
		})
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.cfg.MaxTries),
		backoff.WithMaxElapsedTime(o.cfg.MaxElapsed),
		backoff.WithNotify(notify),
	)

	applied = Applied{Attempts: attempts, Duration: time.Since(start)}
	if err != nil {
		if !IsPermanent(err) && !isTransient(err) {
			err = Transient(0, 0, err)
		}
		return applied, err
	}
	return applied, nil
}

func (o *Orchestrator) call(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case entity.RoleActionGrant:
		return o.client.GrantRole(ctx, cmd.ServerId, cmd.MemberId, cmd.RoleId)
	case entity.RoleActionRevoke:
		return o.client.RevokeRole(ctx, cmd.ServerId, cmd.MemberId, cmd.RoleId)
	default:
		return Permanent("unknown_action", 0, fmt.Errorf("unknown role action %q", cmd.Action))
	}
}
