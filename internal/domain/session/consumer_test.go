package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConsumer_BindPreemptsPrevious(t *testing.T) {
	t.Parallel()

	s, ft := newTestSession(t, 0)
	first := s.Bind()

	// Park the first consumer in Next, then bind a second.
	errCh := make(chan error, 1)
	go func() {
		_, err := first.Next(context.Background())
		errCh <- err
	}()
	// Give the first consumer time to park.
	time.Sleep(20 * time.Millisecond)

	second := s.Bind()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPreempted) {
			t.Fatalf("preempted Next() error = %v, want ErrPreempted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("preempted consumer did not wake")
	}

	// Events flow to the new consumer only.
	ft.hooks.OnMessage(frame(1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := second.Next(ctx); err != nil {
		t.Fatalf("second consumer Next() error = %v", err)
	}

	// The stale handle stays preempted.
	if _, err := first.Next(ctx); !errors.Is(err, ErrPreempted) {
		t.Errorf("stale Next() error = %v, want ErrPreempted", err)
	}
}

func TestConsumer_RebindDeliversQueuedBacklog(t *testing.T) {
	t.Parallel()

	s, ft := newTestSession(t, 0)

	c1 := s.Bind()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ft.hooks.OnMessage(frame(1))
	if _, err := c1.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	_ = c1.Close()

	// Events queued while nobody is bound survive for the next consumer.
	ft.hooks.OnMessage(frame(2))
	ft.hooks.OnMessage(frame(3))

	c2 := s.Bind()
	for _, want := range []int{2, 3} {
		ev, err := c2.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if string(ev.Data) != string(frame(want)) {
			t.Errorf("event = %s, want %s", ev.Data, frame(want))
		}
	}
}

func TestConsumer_NextHonorsContext(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, 0)
	c := s.Bind()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want deadline exceeded", err)
	}
}

func TestConsumer_CloseReportsReapable(t *testing.T) {
	t.Parallel()

	s, ft := newTestSession(t, 0)

	c := s.Bind()
	if reapable := c.Close(); reapable {
		t.Error("session with live transport reported reapable")
	}

	c = s.Bind()
	ft.fail(errors.New("gone"))
	if reapable := c.Close(); !reapable {
		t.Error("dead unbound session not reported reapable")
	}
}

func TestConsumer_StaleCloseDoesNotUnbindCurrent(t *testing.T) {
	t.Parallel()

	s, ft := newTestSession(t, 0)
	stale := s.Bind()
	_ = s.Bind()

	ft.fail(errors.New("gone"))

	// The stale consumer's close must not mark the session unbound while
	// the current consumer is still attached.
	if reapable := stale.Close(); reapable {
		t.Error("stale Close() reported reapable while a newer consumer is bound")
	}
}
