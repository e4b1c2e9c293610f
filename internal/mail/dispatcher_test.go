package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeSender fails the first failN sends, then succeeds.
type fakeSender struct {
	failN int
	calls int
	last  Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.calls++
	f.last = msg
	if f.calls <= f.failN {
		return errors.New("smtp unavailable")
	}
	return nil
}

func TestSendWelcome_FirstAttemptSucceeds(t *testing.T) {
	s := &fakeSender{}
	d := NewDispatcher(s, 3, 0)

	ok := d.SendWelcome(context.Background(), "juan@x.com", "Juan Pérez", "juaper", "pass12345678")
	if !ok {
		t.Fatal("SendWelcome() = false, want true")
	}
	if s.calls != 1 {
		t.Errorf("send calls = %d, want 1", s.calls)
	}

	if got := s.last.To; len(got) != 1 || got[0] != "juan@x.com" {
		t.Errorf("To = %v, want [juan@x.com]", got)
	}
	for _, want := range []string{"Juan Pérez", "juaper", "juan@x.com", "pass12345678"} {
		if !strings.Contains(s.last.HTML, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestSendWelcome_RetriesThenSucceeds(t *testing.T) {
	s := &fakeSender{failN: 2}
	d := NewDispatcher(s, 3, 0)

	ok := d.SendWelcome(context.Background(), "juan@x.com", "Juan", "jua", "cred")
	if !ok {
		t.Fatal("SendWelcome() = false, want true on third attempt")
	}
	if s.calls != 3 {
		t.Errorf("send calls = %d, want 3", s.calls)
	}
}

func TestSendWelcome_ExhaustsAttempts(t *testing.T) {
	s := &fakeSender{failN: 10}
	d := NewDispatcher(s, 3, 0)

	ok := d.SendWelcome(context.Background(), "juan@x.com", "Juan", "jua", "cred")
	if ok {
		t.Fatal("SendWelcome() = true, want false after exhausting attempts")
	}
	if s.calls != 3 {
		t.Errorf("send calls = %d, want exactly 3", s.calls)
	}
}

func TestSendWelcome_CancelledContextStopsRetrying(t *testing.T) {
	s := &fakeSender{failN: 10}
	d := NewDispatcher(s, 3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := d.SendWelcome(ctx, "juan@x.com", "Juan", "jua", "cred")
	if ok {
		t.Fatal("SendWelcome() = true, want false with cancelled context")
	}
	if s.calls != 1 {
		t.Errorf("send calls = %d, want 1 before cancellation is observed", s.calls)
	}
}

// failingHookSender always fails and runs hook after every send.
type failingHookSender struct {
	calls int
	hook  func()
}

func (f *failingHookSender) Send(context.Context, Message) error {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return errors.New("smtp unavailable")
}

func TestSendWelcome_CancelBetweenAttemptsSkipsDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &failingHookSender{hook: cancel}
	// The hour-long delay would hang the test if cancellation did not
	// short-circuit the wait between attempts.
	d := NewDispatcher(s, 3, time.Hour)

	done := make(chan bool, 1)
	go func() {
		done <- d.SendWelcome(ctx, "juan@x.com", "Juan", "jua", "cred")
	}()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("SendWelcome() = true, want false after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendWelcome did not return promptly after cancellation")
	}
	if s.calls != 1 {
		t.Errorf("send calls = %d, want 1 before cancellation is observed", s.calls)
	}
}

func TestWelcomeHTML_EscapesContent(t *testing.T) {
	body := welcomeHTML("<script>alert(1)</script>", "a@b.com", "user", "pass")
	if strings.Contains(body, "<script>") {
		t.Error("display name must be HTML-escaped")
	}
}
