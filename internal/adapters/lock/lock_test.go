package lock_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	lock "github.com/halfline/overunder/internal/adapters/lock"
	repository "github.com/halfline/overunder/internal/adapters/repository"
	"github.com/halfline/overunder/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "league.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAcquireRelease(t *testing.T) {
	Convey("Given a locker over a fresh database", t, func() {
		store := openStore(t)
		ctx := context.Background()

		Convey("When acquiring a free lease", func() {
			locker := lock.New(store.DB())
			lease, err := locker.Acquire(ctx, "refresh")

			Convey("Then the lease is granted", func() {
				So(err, ShouldBeNil)
				So(lease, ShouldNotBeNil)
				So(lease.Release(ctx), ShouldBeNil)
			})
		})

		Convey("When releasing twice", func() {
			locker := lock.New(store.DB())
			lease, err := locker.Acquire(ctx, "refresh")
			So(err, ShouldBeNil)

			So(lease.Release(ctx), ShouldBeNil)

			Convey("Then the second release is a no-op", func() {
				So(lease.Release(ctx), ShouldBeNil)
			})
		})

		Convey("When the lease is released", func() {
			locker := lock.New(store.DB())
			lease, err := locker.Acquire(ctx, "refresh")
			So(err, ShouldBeNil)
			So(lease.Release(ctx), ShouldBeNil)

			Convey("Then another locker can take it immediately", func() {
				other := lock.New(store.DB())
				next, err := other.Acquire(ctx, "refresh")
				So(err, ShouldBeNil)
				So(next.Release(ctx), ShouldBeNil)
			})
		})

		Convey("When two lockers share the same database", func() {
			first := lock.New(store.DB(), lock.WithPollInterval(10*time.Millisecond))
			second := lock.New(store.DB(), lock.WithPollInterval(10*time.Millisecond))

			lease, err := first.Acquire(ctx, "refresh")
			So(err, ShouldBeNil)

			Convey("Then the second acquire times out with ErrContended", func() {
				timed, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer cancel()

				_, err := second.Acquire(timed, "refresh")
				So(errors.Is(err, lock.ErrContended), ShouldBeTrue)

				So(lease.Release(ctx), ShouldBeNil)
			})
		})

		Convey("When leases have different names", func() {
			locker := lock.New(store.DB())
			refresh, err := locker.Acquire(ctx, "refresh")
			So(err, ShouldBeNil)

			Convey("Then they do not contend with each other", func() {
				other, err := locker.Acquire(ctx, "maintenance")
				So(err, ShouldBeNil)

				So(refresh.Release(ctx), ShouldBeNil)
				So(other.Release(ctx), ShouldBeNil)
			})
		})
	})
}

func TestCrossProcessContention(t *testing.T) {
	// Two stores over the same file stand in for two worker processes: each
	// has its own connection pool, so contention goes through SQLite itself
	// rather than a shared in-memory handle.
	Convey("Given two stores opened on the same database file", t, func() {
		path := filepath.Join(t.TempDir(), "league.db")
		first, err := repository.Open(path)
		So(err, ShouldBeNil)
		defer first.Close()
		second, err := repository.Open(path)
		So(err, ShouldBeNil)
		defer second.Close()
		ctx := context.Background()

		Convey("When one process holds the lease", func() {
			holder := lock.New(first.DB(), lock.WithPollInterval(10*time.Millisecond))
			lease, err := holder.Acquire(ctx, "refresh")
			So(err, ShouldBeNil)

			Convey("Then the other process times out with ErrContended, not a driver error", func() {
				contender := lock.New(second.DB(), lock.WithPollInterval(10*time.Millisecond))
				timed, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
				defer cancel()

				_, err := contender.Acquire(timed, "refresh")
				So(errors.Is(err, lock.ErrContended), ShouldBeTrue)

				So(lease.Release(ctx), ShouldBeNil)
			})
		})

		Convey("When both processes race for a free lease", func() {
			lockers := []*lock.Locker{
				lock.New(first.DB(), lock.WithPollInterval(5*time.Millisecond)),
				lock.New(second.DB(), lock.WithPollInterval(5*time.Millisecond)),
			}

			const attempts = 10
			var (
				mu        sync.Mutex
				holders   int
				contended int
				others    []error
			)
			var wg sync.WaitGroup
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(l *lock.Locker) {
					defer wg.Done()
					timed, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
					defer cancel()

					lease, err := l.Acquire(timed, "refresh")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						holders++
						// Held until the test ends, so every other
						// attempt must lose.
						_ = lease
					case errors.Is(err, lock.ErrContended):
						contended++
					default:
						others = append(others, err)
					}
				}(lockers[i%2])
			}
			wg.Wait()

			Convey("Then exactly one wins and every loser sees ErrContended", func() {
				So(holders, ShouldEqual, 1)
				So(contended, ShouldEqual, attempts-1)
				So(others, ShouldBeEmpty)
			})
		})
	})
}

func TestLeaseExpiry(t *testing.T) {
	Convey("Given a lease held with a very short TTL", t, func() {
		store := openStore(t)
		ctx := context.Background()

		crashed := lock.New(store.DB(), lock.WithTTL(20*time.Millisecond))
		_, err := crashed.Acquire(ctx, "refresh")
		So(err, ShouldBeNil)
		// Simulate a crashed holder: the lease is never released.

		Convey("When the TTL passes", func() {
			time.Sleep(50 * time.Millisecond)

			Convey("Then a new locker takes the lease over", func() {
				successor := lock.New(store.DB(), lock.WithPollInterval(10*time.Millisecond))
				lease, err := successor.Acquire(ctx, "refresh")
				So(err, ShouldBeNil)
				So(lease.Release(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a stale lease that was taken over", t, func() {
		store := openStore(t)
		ctx := context.Background()

		stale := lock.New(store.DB(), lock.WithTTL(20*time.Millisecond))
		staleLease, err := stale.Acquire(ctx, "refresh")
		So(err, ShouldBeNil)
		time.Sleep(50 * time.Millisecond)

		successor := lock.New(store.DB(), lock.WithPollInterval(10*time.Millisecond))
		current, err := successor.Acquire(ctx, "refresh")
		So(err, ShouldBeNil)

		Convey("When the stale holder releases late", func() {
			So(staleLease.Release(ctx), ShouldBeNil)

			Convey("Then the new holder's lease is untouched", func() {
				contender := lock.New(store.DB(), lock.WithPollInterval(10*time.Millisecond))
				timed, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer cancel()

				_, err := contender.Acquire(timed, "refresh")
				So(errors.Is(err, lock.ErrContended), ShouldBeTrue)

				So(current.Release(ctx), ShouldBeNil)
			})
		})
	})
}
