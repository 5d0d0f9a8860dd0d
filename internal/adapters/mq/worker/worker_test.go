package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/hanta/internal/adapters/mq/queue"
	"github.com/okian/hanta/internal/adapters/mq/worker"
	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch   chan model.Record
	once sync.Once
}

func newMockQueue() *mockQueue { return &mockQueue{ch: make(chan model.Record, 16)} }

func (q *mockQueue) Dequeue() <-chan model.Record { return q.ch }

func (q *mockQueue) Close() error {
	q.once.Do(func() { close(q.ch) })
	return nil
}

type mockUpdater struct {
	mu      sync.Mutex
	updates map[string]int64
	errs    map[string]error
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{updates: make(map[string]int64), errs: make(map[string]error)}
}

func (u *mockUpdater) UpsertBest(_ context.Context, rec model.Record) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err, ok := u.errs[rec.Name]; ok {
		return false, err
	}
	u.updates[rec.Name] = rec.Score
	return true, nil
}

func (u *mockUpdater) fail(name string, err error) {
	u.mu.Lock()
	u.errs[name] = err
	u.mu.Unlock()
}

func (u *mockUpdater) get(name string) (int64, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.updates[name]
	return s, ok
}

func record(name string, score int64) model.Record {
	return model.Record{ID: "id-" + name, Name: name, Mode: model.ModeLong, Score: score, Year: 2026, Month: 5}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		updater := newMockUpdater()
		w := worker.NewInMemoryWorker(q, updater, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a record arrives", func() {
			q.ch <- record("alice", 300)

			convey.Convey("Then it should be persisted", func() {
				convey.So(eventually(func() bool { _, ok := updater.get("alice"); return ok }), convey.ShouldBeTrue)
				score, _ := updater.get("alice")
				convey.So(score, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When persisting fails", func() {
			updater.fail("bob", errors.New("disk full"))
			q.ch <- record("bob", 100)
			q.ch <- record("carol", 200)

			convey.Convey("Then the worker should keep going", func() {
				convey.So(eventually(func() bool { _, ok := updater.get("carol"); return ok }), convey.ShouldBeTrue)
				_, ok := updater.get("bob")
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(w.Processed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the queue is closed", func() {
			q.ch <- record("dan", 1)
			_ = q.Close()

			convey.Convey("Then the worker should drain and stop", func() {
				select {
				case <-w.Done():
				case <-time.After(2 * time.Second):
				}
				_, ok := updater.get("dan")
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then the worker should stop", func() {
				stopped := false
				select {
				case <-w.Done():
					stopped = true
				case <-time.After(2 * time.Second):
				}
				convey.So(stopped, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue and memory store", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		store := repository.NewMemoryStore()
		pool := worker.NewPool(4, q, store)
		ctx := context.Background()
		pool.Start(ctx)

		convey.Convey("When many records are enqueued and the pool shuts down", func() {
			for i := 0; i < 100; i++ {
				convey.So(q.Enqueue(ctx, record(fmt.Sprintf("p%02d", i%20), int64(i))), convey.ShouldBeNil)
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every record should be drained into the store", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, 100)
				convey.So(store.Count(ctx), convey.ShouldEqual, 20)
				top, _ := store.TopN(ctx, repository.Board{Mode: model.ModeLong, Year: 2026, Month: 5}, 1)
				convey.So(top[0].Score, convey.ShouldEqual, 99)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a default size", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newMockUpdater())

		convey.Convey("Then it should have at least one worker", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})

	convey.Convey("Given a pool whose workers cannot drain in time", t, func() {
		q := newMockQueue()
		pool := worker.NewPool(1, q, newMockUpdater())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		convey.Convey("Then shutdown should report the timeout", func() {
			err := pool.Shutdown(ctx)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})
}
