package postgres

import (
	"context"
	"testing"

	"github.com/tablechat/tablechat/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Schema: "public"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
