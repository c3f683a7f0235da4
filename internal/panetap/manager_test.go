package panetap

import (
	"context"
	"testing"
	"time"
)

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error { f.closed = true; return nil }

func TestSubscribeOpensTapOnce(t *testing.T) {
	m := NewManager()
	opens := 0
	open := func(ctx context.Context, paneID string, feed func([]byte)) (CaptureCloser, error) {
		opens++
		return &fakeCloser{}, nil
	}

	ch1, _, _, err := m.Subscribe(context.Background(), "%1", "viewer-a", open)
	if err != nil {
		t.Fatalf("Subscribe viewer-a: %v", err)
	}
	_, _, _, err = m.Subscribe(context.Background(), "%1", "viewer-b", open)
	if err != nil {
		t.Fatalf("Subscribe viewer-b: %v", err)
	}
	if opens != 1 {
		t.Fatalf("tap opened %d times, want 1", opens)
	}

	m.Feed("%1", []byte("hello\n"))
	select {
	case frame := <-ch1:
		if string(frame.Content) != "hello\n" || frame.Kind != "delta" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fed frame")
	}
}

func TestUnsubscribeLastViewerClosesAfterGrace(t *testing.T) {
	m := NewManager()
	closer := &fakeCloser{}
	open := func(ctx context.Context, paneID string, feed func([]byte)) (CaptureCloser, error) {
		return closer, nil
	}

	_, _, _, err := m.Subscribe(context.Background(), "%2", "only-viewer", open)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	m.Unsubscribe("%2", "only-viewer")

	if closer.closed {
		t.Fatal("tap closed immediately, expected grace period")
	}
	time.Sleep(unsubscribeGrace + 200*time.Millisecond)
	if !closer.closed {
		t.Fatal("tap was never closed after grace period elapsed")
	}
}

func TestSinceReturnsFalseForCursorBeyondNext(t *testing.T) {
	m := NewManager()
	open := func(ctx context.Context, paneID string, feed func([]byte)) (CaptureCloser, error) {
		return &fakeCloser{}, nil
	}
	_, _, _, _ = m.Subscribe(context.Background(), "%3", "v", open)

	m.Feed("%3", []byte("a\n"))
	_, ok := m.Since("%3", 0)
	if !ok {
		t.Fatal("expected cursor 0 to still be valid right after first feed")
	}

	if _, ok := m.Since("%3", 9999); ok {
		t.Fatal("expected future cursor beyond nextCursor to be invalid")
	}
}
