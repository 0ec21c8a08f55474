package memory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veloswap/market/internal/marketplace/adapters/memory"
	"github.com/veloswap/market/internal/marketplace/domain"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	content := `{
		"users": ["buyer"],
		"listings": [
			{"id": "l1", "owner_id": "seller", "title": "Road bike", "price": 20000, "region": "tokyo"},
			{"id": "l2", "owner_id": "seller", "title": "Sold bike", "price": 9000, "status": "sold", "region": "osaka"}
		]
	}`

	tests := []struct {
		name       string
		moderation bool
		want       domain.ListingStatus
	}{
		{"moderation holds new listings for review", true, domain.ListingPendingReview},
		{"without moderation listings go live", false, domain.ListingAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			seed, err := store.LoadSeed(writeSeed(t, content), tt.moderation, now)
			if err != nil {
				t.Fatalf("LoadSeed() failed: %v", err)
			}
			if len(seed.Listings) != 2 {
				t.Fatalf("expected 2 listings, got %d", len(seed.Listings))
			}

			l1, ok := store.Listing("l1")
			if !ok {
				t.Fatal("expected l1 to be stored")
			}
			if l1.Status != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, l1.Status)
			}
			if !l1.CreatedAt.Equal(now) {
				t.Errorf("expected created_at defaulted, got %v", l1.CreatedAt)
			}

			l2, _ := store.Listing("l2")
			if l2.Status != domain.ListingSold {
				t.Errorf("expected explicit status kept, got %s", l2.Status)
			}
		})
	}
}

func TestLoadSeedErrors(t *testing.T) {
	store := memory.NewStore()

	if _, err := store.LoadSeed(filepath.Join(t.TempDir(), "missing.json"), false, time.Now()); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := store.LoadSeed(writeSeed(t, "{"), false, time.Now()); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := store.LoadSeed(writeSeed(t, `{"listings":[{"title":"no id"}]}`), false, time.Now()); err == nil {
		t.Error("expected error for listing without id")
	}
}
