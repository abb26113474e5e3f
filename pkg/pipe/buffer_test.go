package pipe

import (
	"testing"
	"time"
)

func TestBufferCollects(t *testing.T) {
	b, err := NewBuffer(64)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.W.WriteString("hello runtime"); err != nil {
		t.Fatal(err)
	}
	b.W.Close()

	select {
	case <-b.Done:
	case <-time.After(time.Second):
		t.Fatal("采集未在期限内完成")
	}
	if got := string(b.Bytes()); got != "hello runtime" {
		t.Errorf("Bytes() = %q", got)
	}
	if b.Truncated() {
		t.Error("未超限的输出被标记为截断")
	}
}

func TestBufferTruncates(t *testing.T) {
	b, err := NewBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.W.WriteString("overflow"); err != nil {
		t.Fatal(err)
	}
	b.W.Close()

	select {
	case <-b.Done:
	case <-time.After(time.Second):
		t.Fatal("采集未在期限内完成")
	}
	if !b.Truncated() {
		t.Error("超限的输出未被标记为截断")
	}
	if got := string(b.Bytes()); got != "over" {
		t.Errorf("Bytes() = %q，期望截断到上限", got)
	}
}
