package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/blindfold/internal/adapters/mq/queue"
	"github.com/okian/blindfold/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func event(kind model.EventKind, height uint64) queue.Event {
	return queue.Event{Kind: kind, Height: height, TS: time.Now()}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a new InMemoryQueue", t, func() {
		ctx := context.Background()

		Convey("When publishing below capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))
			ok1 := q.Publish(ctx, event(model.EventRequestCreated, 1))
			ok2 := q.Publish(ctx, event(model.EventRequestCreated, 2))

			Convey("Then events are accepted", func() {
				So(ok1, ShouldBeTrue)
				So(ok2, ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("And publishing past capacity", func() {
				ok := q.Publish(ctx, event(model.EventRequestCreated, 3))

				Convey("Then the event is dropped without blocking", func() {
					So(ok, ShouldBeFalse)
					So(q.Len(ctx), ShouldEqual, 2)
				})
			})
		})

		Convey("When the context is cancelled", func() {
			q := queue.NewInMemoryQueue()
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then publishing is refused", func() {
				So(q.Publish(cancelled, event(model.EventRequestCreated, 1)), ShouldBeFalse)
			})
		})

		Convey("When dequeuing", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10))
			for i := uint64(1); i <= 3; i++ {
				So(q.Publish(ctx, event(model.EventRequestCreated, i)), ShouldBeTrue)
			}
			ch := q.Dequeue(ctx)

			Convey("Then events arrive in publish order", func() {
				for i := uint64(1); i <= 3; i++ {
					select {
					case e := <-ch:
						So(e.Height, ShouldEqual, i)
					case <-time.After(time.Second):
						So("timeout", ShouldBeEmpty)
					}
				}
			})
		})

		Convey("When the queue is closed with events pending", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10))
			So(q.Publish(ctx, event(model.EventRequestCreated, 1)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then it refuses new events but drains old ones", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Publish(ctx, event(model.EventRequestCreated, 2)), ShouldBeFalse)

				var got []uint64
				for e := range q.Dequeue(ctx) {
					got = append(got, e.Height)
				}
				So(got, ShouldResemble, []uint64{1})
			})
		})

		Convey("When publishing concurrently with close", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
			var wg sync.WaitGroup
			for g := 0; g < 4; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						q.Publish(ctx, event(model.EventRequestCreated, uint64(i)))
					}
				}()
			}
			_ = q.Close()
			wg.Wait()

			Convey("Then nothing panics", func() {
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})
}
