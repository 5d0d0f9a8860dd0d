package session_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newManager(clock *fakeClock, opts ...session.Option) *session.Manager {
	var seq atomic.Int64
	base := []session.Option{
		session.WithClock(clock.Now),
		session.WithTTL(time.Hour),
		session.WithMaxSubmissions(3),
		session.WithMinInterval(2 * time.Second),
		session.WithTokenGenerator(func() string { return fmt.Sprintf("tok-%d", seq.Add(1)) }),
	}
	return session.NewManager(append(base, opts...)...)
}

func TestOpenAndValidate(t *testing.T) {
	Convey("Given a session manager", t, func() {
		clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
		m := newManager(clock)

		Convey("When opening a session", func() {
			s := m.Open(model.ModeLong)

			Convey("Then it should be fresh and bound to the mode", func() {
				So(s.Token, ShouldEqual, "tok-1")
				So(s.Mode, ShouldEqual, model.ModeLong)
				So(s.ExpiresAt, ShouldEqual, clock.Now().Add(time.Hour))
				So(s.Submissions, ShouldEqual, 0)
				So(s.Name, ShouldBeEmpty)
			})

			Convey("Then validate should return it while live", func() {
				got, err := m.Validate(s.Token)
				So(err, ShouldBeNil)
				So(got.Mode, ShouldEqual, model.ModeLong)
			})

			Convey("Then validate should drop it once expired", func() {
				clock.Advance(time.Hour)
				_, err := m.Validate(s.Token)
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
				So(m.Len(), ShouldEqual, 0)
			})
		})

		Convey("When validating an unknown token", func() {
			_, err := m.Validate("nope")

			Convey("Then ErrNotFound should be returned", func() {
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestSubmissionCadence(t *testing.T) {
	Convey("Given an open session", t, func() {
		clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
		m := newManager(clock)
		s := m.Open(model.ModeShort)

		Convey("When two submissions arrive 500ms apart", func() {
			_, err := m.Reserve(s.Token)
			So(err, ShouldBeNil)
			So(m.RecordSubmission(s.Token, "alice"), ShouldBeTrue)

			clock.Advance(500 * time.Millisecond)
			_, err = m.Reserve(s.Token)

			Convey("Then the second should be denied with a positive wait", func() {
				var denied *session.Denied
				So(errors.As(err, &denied), ShouldBeTrue)
				So(errors.Is(err, session.ErrTooSoon), ShouldBeTrue)
				So(denied.Wait, ShouldEqual, 1500*time.Millisecond)
				So(denied.WaitSeconds(), ShouldEqual, 2)
				So(denied.ResetAt, ShouldEqual, clock.Now().Add(2*time.Second))
			})

			Convey("Then it should be allowed after the interval", func() {
				clock.Advance(1500 * time.Millisecond)
				_, err := m.Reserve(s.Token)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the cap is reached", func() {
			for i := 0; i < 3; i++ {
				_, err := m.Reserve(s.Token)
				So(err, ShouldBeNil)
				m.RecordSubmission(s.Token, "bob")
				clock.Advance(3 * time.Second)
			}
			got, _ := m.Validate(s.Token)

			Convey("Then CanSubmit should deny without a wait", func() {
				err := m.CanSubmit(got)
				var denied *session.Denied
				So(errors.As(err, &denied), ShouldBeTrue)
				So(errors.Is(err, session.ErrLimitReached), ShouldBeTrue)
				So(denied.WaitSeconds(), ShouldEqual, 0)
				So(denied.ResetAt, ShouldEqual, got.ExpiresAt)
			})
		})

		Convey("When a reservation is in flight", func() {
			_, err := m.Reserve(s.Token)
			So(err, ShouldBeNil)
			_, second := m.Reserve(s.Token)

			Convey("Then a concurrent reservation should be denied", func() {
				So(errors.Is(second, session.ErrInFlight), ShouldBeTrue)
				var denied *session.Denied
				So(errors.As(second, &denied), ShouldBeTrue)
				So(denied.ResetAt, ShouldEqual, clock.Now().Add(time.Second))
			})

			Convey("Then releasing should allow a retry without counting", func() {
				m.Release(s.Token)
				got, err := m.Reserve(s.Token)
				So(err, ShouldBeNil)
				So(got.Submissions, ShouldEqual, 0)
			})
		})

		Convey("When many goroutines race on one session", func() {
			var ok atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := m.Reserve(s.Token); err == nil {
						ok.Add(1)
						m.RecordSubmission(s.Token, "racer")
					}
				}()
			}
			wg.Wait()

			Convey("Then only one should be recorded", func() {
				So(ok.Load(), ShouldEqual, 1)
				got, _ := m.Validate(s.Token)
				So(got.Submissions, ShouldEqual, 1)
			})
		})
	})
}

func TestRecordSubmission(t *testing.T) {
	Convey("Given an open session", t, func() {
		clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
		m := newManager(clock)
		s := m.Open(model.ModeVenice)

		Convey("When recording with different names", func() {
			So(m.RecordSubmission(s.Token, "first"), ShouldBeTrue)
			clock.Advance(5 * time.Second)
			So(m.RecordSubmission(s.Token, "second"), ShouldBeTrue)
			got, _ := m.Validate(s.Token)

			Convey("Then the first name should stick", func() {
				So(got.Name, ShouldEqual, "first")
				So(got.Submissions, ShouldEqual, 2)
				So(got.LastSubmission, ShouldEqual, clock.Now())
				So(got.Mode, ShouldEqual, model.ModeVenice)
			})
		})

		Convey("When recording an unknown token", func() {
			Convey("Then it should fail", func() {
				So(m.RecordSubmission("missing", "x"), ShouldBeFalse)
			})
		})
	})
}

func TestSweep(t *testing.T) {
	Convey("Given sessions opened at different times", t, func() {
		clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
		m := newManager(clock)
		m.Open(model.ModeShort)
		clock.Advance(30 * time.Minute)
		live := m.Open(model.ModeShort)
		clock.Advance(31 * time.Minute)

		Convey("When sweeping", func() {
			removed := m.Sweep()

			Convey("Then only expired sessions should be removed", func() {
				So(removed, ShouldEqual, 1)
				So(m.Len(), ShouldEqual, 1)
				_, err := m.Validate(live.Token)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the background loop runs", func() {
			m2 := newManager(clock, session.WithSweepInterval(5*time.Millisecond))
			m2.Open(model.ModeShort)
			clock.Advance(2 * time.Hour)
			m2.Start()
			defer m2.Close()

			Convey("Then expired sessions should disappear without lookups", func() {
				deadline := time.Now().Add(2 * time.Second)
				for m2.Len() > 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(m2.Len(), ShouldEqual, 0)
			})
		})
	})
}
