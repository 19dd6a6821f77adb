package credentials

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("  initial-token  ")

	token, err := store.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "initial-token" {
		t.Errorf("Token() = %q, want %q", token, "initial-token")
	}

	if err := store.SetToken(ctx, "rotated"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	token, _ = store.Token(ctx)
	if token != "rotated" {
		t.Errorf("Token() after rotation = %q, want %q", token, "rotated")
	}
}

func TestMemoryStore_Empty(t *testing.T) {
	token, err := NewMemoryStore("").Token(context.Background())
	if err != nil || token != "" {
		t.Errorf("Token() = %q, %v; want empty, nil", token, err)
	}
}

func TestHasToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"", false},
		{"short", false},
		{"exactly-twenty-chars", false},
		{"EAAGm0PX4ZCpsBAAlongtoken", true},
	}

	for _, tt := range tests {
		if got := HasToken(tt.token); got != tt.want {
			t.Errorf("HasToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"abc", "***abc"},
		{"EAAGm0PX4ZCpsBAA123456", "***123456"},
	}

	for _, tt := range tests {
		if got := Mask(tt.token); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

// setupTestRedis creates a test Redis client, skipping when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestRedisStore_SeedAndRotate(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	token, err := store.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "" {
		t.Errorf("Token() on empty store = %q, want empty", token)
	}

	written, err := store.Seed(ctx, "from-env")
	if err != nil || !written {
		t.Fatalf("Seed() = %v, %v; want true, nil", written, err)
	}

	written, err = store.Seed(ctx, "second-seed")
	if err != nil || written {
		t.Errorf("second Seed() = %v, %v; want false, nil", written, err)
	}

	if err := store.SetToken(ctx, "rotated"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	token, _ = store.Token(ctx)
	if token != "rotated" {
		t.Errorf("Token() = %q, want %q", token, "rotated")
	}

	if err := store.SetToken(ctx, ""); err != nil {
		t.Fatalf("SetToken(\"\") error = %v", err)
	}
	token, _ = store.Token(ctx)
	if token != "" {
		t.Errorf("Token() after clear = %q, want empty", token)
	}
}
