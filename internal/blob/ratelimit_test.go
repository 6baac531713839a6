package blob

import (
	"context"
	"testing"
)

func TestNewRateLimitedStore_ZeroRateReturnsNext(t *testing.T) {
	mem := NewMemoryStore("corpus")
	if s := NewRateLimitedStore(mem, 0, 1); s != Store(mem) {
		t.Error("zero rate should return the wrapped store unchanged")
	}
}

func TestRateLimitedStore_DelegatesPutAndGet(t *testing.T) {
	mem := NewMemoryStore("corpus")
	s := NewRateLimitedStore(mem, 1000, 10)

	h, err := s.Put(context.Background(), "k", []byte("data"), "text/plain")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if mem.Puts() != 1 {
		t.Errorf("Puts = %d, want 1", mem.Puts())
	}
	if got := readAll(t, s, h); string(got) != "data" {
		t.Errorf("Get = %q", got)
	}
}

// 待機中にctxが終了した場合は書き込まずにエラーを返すこと
func TestRateLimitedStore_CanceledWhileWaiting(t *testing.T) {
	mem := NewMemoryStore("corpus")
	s := NewRateLimitedStore(mem, 0.001, 1)

	// 最初の1回はバーストで通過する
	if _, err := s.Put(context.Background(), "k", []byte("1"), "text/plain"); err != nil {
		t.Fatalf("first Put returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "k", []byte("2"), "text/plain"); err == nil {
		t.Error("Put with canceled context should fail")
	}
	if mem.Puts() != 1 {
		t.Errorf("Puts = %d, want 1", mem.Puts())
	}
}
