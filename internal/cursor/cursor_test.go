package cursor_test

import (
	"testing"

	"github.com/openclaw/notifyd/internal/cursor"
)

func TestCursor_EmptyList(t *testing.T) {
	c := cursor.New()
	if c.Index() != -1 {
		t.Errorf("new cursor index = %d, want -1", c.Index())
	}
	c.MoveDown()
	c.MoveUp()
	if c.Index() != -1 {
		t.Errorf("moves on empty list changed index to %d", c.Index())
	}

	var zero cursor.Cursor
	if zero.Index() != -1 {
		t.Errorf("zero cursor index = %d, want -1", zero.Index())
	}
}

func TestCursor_ClampsWithoutWrap(t *testing.T) {
	c := cursor.New()
	c.Reset(3)
	if c.Index() != 0 {
		t.Fatalf("index after first Reset = %d, want 0", c.Index())
	}

	c.MoveUp()
	if c.Index() != 0 {
		t.Errorf("MoveUp at top = %d, want 0", c.Index())
	}
	for range 5 {
		c.MoveDown()
	}
	if c.Index() != 2 {
		t.Errorf("MoveDown past end = %d, want 2", c.Index())
	}
}

func TestCursor_ResetClampsOnShrink(t *testing.T) {
	c := cursor.New()
	c.Reset(5)
	c.Set(4)

	c.Reset(3)
	if c.Index() != 2 {
		t.Errorf("after shrink to 3: index = %d, want 2", c.Index())
	}
	c.Reset(10)
	if c.Index() != 2 {
		t.Errorf("growth moved the index to %d", c.Index())
	}
	c.Reset(0)
	if c.Index() != -1 {
		t.Errorf("after shrink to 0: index = %d, want -1", c.Index())
	}
	c.Reset(2)
	if c.Index() != 0 {
		t.Errorf("after regrow: index = %d, want 0", c.Index())
	}
}

func TestCursor_Set(t *testing.T) {
	c := cursor.New()
	c.Reset(4)
	for _, tt := range []struct{ in, want int }{{-3, 0}, {2, 2}, {9, 3}} {
		c.Set(tt.in)
		if c.Index() != tt.want {
			t.Errorf("Set(%d) -> %d, want %d", tt.in, c.Index(), tt.want)
		}
	}
}
