package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/seatalloc/internal/adapters/mq/queue"
	worker "github.com/okian/seatalloc/internal/adapters/mq/worker"
	model "github.com/okian/seatalloc/internal/domain/model"
	logging "github.com/okian/seatalloc/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	requests chan worker.Request
}

func newMockQueue() *mockQueue {
	return &mockQueue{requests: make(chan worker.Request, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan worker.Request {
	return mq.requests
}

func (mq *mockQueue) Close() error {
	close(mq.requests)
	return nil
}

type mockRunner struct {
	mu     sync.Mutex
	ran    []string
	errors map[string]error
	delay  time.Duration
}

func newMockRunner() *mockRunner {
	return &mockRunner{errors: make(map[string]error)}
}

func (r *mockRunner) RunQueued(ctx context.Context, req worker.Request) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, req.ID)
	return r.errors[req.ID]
}

func (r *mockRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

// blockingRunner holds every pass until release is closed.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) RunQueued(ctx context.Context, _ worker.Request) error {
	close(r.started)
	<-r.release
	return nil
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func pass(id string) worker.Request {
	return model.PassRequest{ID: id, Category: model.CategoryElective, RequestedAt: time.Now()}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithName("custom"), worker.WithLogger(logging.Get()))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And when passes are queued", func() {
				q.requests <- pass("p1")
				q.requests <- pass("p2")

				convey.Convey("Then they run in order", func() {
					convey.So(waitFor(func() bool { return runner.count() == 2 }), convey.ShouldBeTrue)
					runner.mu.Lock()
					convey.So(runner.ran, convey.ShouldResemble, []string{"p1", "p2"})
					runner.mu.Unlock()
				})
			})

			convey.Convey("And when a pass fails", func() {
				runner.errors["bad"] = errors.New("store unavailable")
				q.requests <- pass("bad")
				q.requests <- pass("good")

				convey.Convey("Then the worker keeps going", func() {
					convey.So(waitFor(func() bool { return runner.count() == 2 }), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
				defer done()

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, runner)
			finished := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(finished)
			}()
			_ = q.Close()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-finished:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					t.Error("worker did not stop after queue close")
				}
			})
		})

		convey.Convey("When context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			finished := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(finished)
			}()
			cancel()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-finished:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					t.Error("worker did not stop after cancellation")
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		_ = logging.Init()

		runner := newMockRunner()

		convey.Convey("When creating a pool with a non-positive count", func() {
			p := worker.NewPool(0, newMockQueue(), runner)

			convey.Convey("Then it uses the default size", func() {
				convey.So(p.Size(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a started pool is fed through a real queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(16))
			p := worker.NewPool(3, q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			for i := 0; i < 10; i++ {
				convey.So(q.Enqueue(ctx, pass(fmt.Sprintf("p%d", i))), convey.ShouldBeNil)
			}

			convey.Convey("Then shutdown drains every queued pass", func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
				defer done()
				convey.So(p.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(runner.count(), convey.ShouldEqual, 10)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a worker is stuck in a pass that never returns", func() {
			stuck := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
			defer close(stuck.release)

			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			p := worker.NewPool(1, q, stuck)
			p.Start(context.WithoutCancel(context.Background()))
			convey.So(q.Enqueue(context.Background(), pass("stuck")), convey.ShouldBeNil)
			<-stuck.started

			convey.Convey("Then shutdown gives up once its deadline passes", func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer done()

				result := make(chan error, 1)
				go func() { result <- p.Shutdown(shutdownCtx) }()

				select {
				case err := <-result:
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				case <-time.After(2 * time.Second):
					convey.So("shutdown returned", convey.ShouldEqual, "shutdown still blocked")
				}
			})
		})
	})
}
