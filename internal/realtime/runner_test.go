package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"order-feed-sync/internal/feed"
)

type fakeCache struct {
	values map[string]string
	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (c *fakeCache) GetCursor(_ context.Context, name string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	return c.values[name], nil
}

func (c *fakeCache) SetCursor(_ context.Context, name, value string) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.values[name] = value
	return nil
}

type fakeLocker struct {
	acquired bool
	err      error
	releases int
	holdoffs []bool
}

func (l *fakeLocker) AcquireSyncLock(_ context.Context, _ string, _ time.Duration) (func(bool), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.acquired {
		return nil, false, nil
	}
	return func(holdoff bool) {
		l.releases++
		l.holdoffs = append(l.holdoffs, holdoff)
	}, true, nil
}

type fakePageRunner struct {
	next    string
	err     error
	cursors []string
}

func (r *fakePageRunner) RunPage(_ context.Context, _ feed.Side, cursor string) (string, error) {
	r.cursors = append(r.cursors, cursor)
	if r.err != nil {
		return "", r.err
	}
	return r.next, nil
}

func newTestRunner(sync PageRunner, cache *fakeCache, locker *fakeLocker) *Runner {
	return New(Config{
		Delay:     time.Minute,
		CursorKey: "lastSyncCursor",
		LockName:  "realtime-order-sync",
	}, sync, cache, locker, zerolog.Nop())
}

func TestRunOnceCursorRoundTrip(t *testing.T) {
	cache := newFakeCache()
	locker := &fakeLocker{acquired: true}
	sync := &fakePageRunner{next: "abc123"}

	r := newTestRunner(sync, cache, locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if cache.values["lastSyncCursor"] != "abc123" {
		t.Fatalf("cursor 未持久化: %#v", cache.values)
	}

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(sync.cursors) != 2 || sync.cursors[1] != "abc123" {
		t.Fatalf("second run must start at the persisted cursor: %#v", sync.cursors)
	}
}

func TestRunOnceReleasesLockOnFailure(t *testing.T) {
	cache := newFakeCache()
	cache.values["lastSyncCursor"] = "prev"
	locker := &fakeLocker{acquired: true}
	sync := &fakePageRunner{err: errors.New("upstream down")}

	r := newTestRunner(sync, cache, locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("inner failure must be swallowed, got %v", err)
	}

	if locker.releases != 1 {
		t.Fatalf("锁必须恰好释放一次, 实际 %d 次", locker.releases)
	}
	if cache.values["lastSyncCursor"] != "prev" {
		t.Fatalf("failed run must leave the cursor untouched: %#v", cache.values)
	}
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{acquired: false}
	sync := &fakePageRunner{next: "x"}

	r := newTestRunner(sync, newFakeCache(), locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("skipped cycle must not error: %v", err)
	}
	if len(sync.cursors) != 0 {
		t.Fatal("sync must not run without the lock")
	}
	if locker.releases != 0 {
		t.Fatal("nothing to release when the lock was not acquired")
	}
}

func TestRunOnceSwallowsLockError(t *testing.T) {
	locker := &fakeLocker{err: errors.New("db down")}
	sync := &fakePageRunner{next: "x"}

	r := newTestRunner(sync, newFakeCache(), locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("lock error must be swallowed: %v", err)
	}
	if len(sync.cursors) != 0 {
		t.Fatal("sync must not run when lock acquisition failed")
	}
}

func TestRunOnceNoMovementStillCompletes(t *testing.T) {
	cache := newFakeCache()
	cache.values["lastSyncCursor"] = "same"
	locker := &fakeLocker{acquired: true}
	sync := &fakePageRunner{next: "same"}

	r := newTestRunner(sync, cache, locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("stalled cursor is a warning, not an error: %v", err)
	}
	if locker.releases != 1 {
		t.Fatalf("lock must still be released, got %d", locker.releases)
	}
}

func TestRunOnceEmptyNextCursorNotPersisted(t *testing.T) {
	cache := newFakeCache()
	cache.values["lastSyncCursor"] = "prev"
	locker := &fakeLocker{acquired: true}
	sync := &fakePageRunner{next: ""}

	r := newTestRunner(sync, cache, locker)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if cache.values["lastSyncCursor"] != "prev" {
		t.Fatalf("empty cursor must not overwrite the stored one: %#v", cache.values)
	}
}
