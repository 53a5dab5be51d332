package signaling

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSConnSend_OverflowClosesQueue(t *testing.T) {
	c := newWSConn("c1", nil, 2, time.Second)
	overflows := 0
	c.onOverflow = func() { overflows++ }

	for i := 0; i < 2; i++ {
		if err := c.Send([]byte(`{"type":"pong"}`)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if err := c.Send([]byte(`{"type":"pong"}`)); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("err=%v, want %v", err, ErrSendQueueFull)
	}
	if overflows != 1 {
		t.Fatalf("overflows=%d, want 1", overflows)
	}
	if err := c.Send([]byte(`{"type":"pong"}`)); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("err=%v, want %v", err, ErrConnClosed)
	}

	// Already-queued frames are still delivered before the close.
	n := 0
	for range c.send {
		n++
	}
	if n != 2 {
		t.Fatalf("drained %d frames, want 2", n)
	}

	code, _ := closeFrameCode(c.closeFrame)
	if code != websocket.CloseTryAgainLater {
		t.Fatalf("close code=%d, want %d", code, websocket.CloseTryAgainLater)
	}
}

func TestWSConnClose_Idempotent(t *testing.T) {
	c := newWSConn("c1", nil, 1, time.Second)
	c.closeWith(websocket.CloseGoingAway, "bye")
	c.closeWith(websocket.CloseNormalClosure, "again")
	c.abort()

	if code, reason := closeFrameCode(c.closeFrame); code != websocket.CloseGoingAway || reason != "bye" {
		t.Fatalf("close frame=(%d,%q), want first close to win", code, reason)
	}
}

func closeFrameCode(frame []byte) (int, string) {
	if len(frame) < 2 {
		return 0, ""
	}
	return int(frame[0])<<8 | int(frame[1]), string(frame[2:])
}
