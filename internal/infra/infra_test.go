package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewPostgresPool(context.Background(), "::bad"); err == nil {
		t.Fatal("expected parse error")
	}
}
