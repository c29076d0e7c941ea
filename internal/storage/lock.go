package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

const holdoffKeyPrefix = "lock_holdoff:"

// AcquireSyncLock takes the named advisory lock that serialises sync attempts
// across worker instances. The returned release func must be called exactly
// once; passing holdoff=true records a window during which re-acquisition is
// suppressed. The lock is advisory only.
func (s *Store) AcquireSyncLock(ctx context.Context, name string, holdoffWindow time.Duration) (func(holdoff bool), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	if until, err := s.holdoffUntil(ctx, name); err != nil {
		return nil, false, err
	} else if time.Now().UTC().Before(until) {
		return nil, false, nil
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	key := lockKey(name)

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func(holdoff bool) {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if holdoff && holdoffWindow > 0 {
			until := time.Now().UTC().Add(holdoffWindow)
			_ = s.SetCursor(ctxUnlock, holdoffKeyPrefix+name, until.Format(time.RFC3339Nano))
		}
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; the session drop releases it anyway
		}
		conn.Release()
	}
	return release, true, nil
}

func (s *Store) holdoffUntil(ctx context.Context, name string) (time.Time, error) {
	raw, err := s.GetCursor(ctx, holdoffKeyPrefix+name)
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, nil
	}
	until, parseErr := time.Parse(time.RFC3339Nano, raw)
	if parseErr != nil {
		// stale or corrupt marker, ignore it
		return time.Time{}, nil
	}
	return until, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
