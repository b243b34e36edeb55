package flowcache

import (
	"testing"
)

func TestWithCache(t *testing.T) {
	cache := NewMemoryCache(userKey)
	cache.PutSingular(user{ID: "u1", Name: "Ada"})

	store, err := New(userKey, WithCache[string, user](cache))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// the store reads through the supplied cache
	sub := store.GetSingular("u1")
	defer sub.Unsubscribe()

	v, ok := recv(t, sub).Get()
	if !ok || v.Name != "Ada" {
		t.Errorf("snapshot from supplied cache = (%v, %v), want Ada", v, ok)
	}
}

func TestWithCache_Nil(t *testing.T) {
	_, err := New(userKey, WithCache[string, user](nil))
	if err == nil {
		t.Fatal("New(WithCache(nil)) expected error, got nil")
	}
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := New(userKey, WithLogger[string, user](nil))
	if err == nil {
		t.Fatal("New(WithLogger(nil)) expected error, got nil")
	}
}

func TestWithSubscriptionBuffer(t *testing.T) {
	store, err := New(userKey, WithSubscriptionBuffer[string, user](7))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if store.buffer != 7 {
		t.Errorf("buffer = %d, want 7", store.buffer)
	}
}

func TestWithSubscriptionBuffer_Invalid(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(userKey, WithSubscriptionBuffer[string, user](tt.n))
			if err == nil {
				t.Errorf("New(WithSubscriptionBuffer(%d)) expected error, got nil", tt.n)
			}
		})
	}
}

func TestNew_DefaultBuffer(t *testing.T) {
	store := newTestStore(t)
	if store.buffer != defaultSubscriptionBuffer {
		t.Errorf("buffer = %d, want default %d", store.buffer, defaultSubscriptionBuffer)
	}
}
