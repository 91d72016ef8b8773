package menu

import (
	"context"
	"fmt"
	"testing"

	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/storage/storagetest"
)

// seedBenchTree creates catalogs with menus and buttons under each
func seedBenchTree(b *testing.B, store *Store, catalogs, perCatalog int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < catalogs; i++ {
		catalog, err := store.Create(ctx, MenuCreate{Name: fmt.Sprintf("catalog-%d", i), Type: TypeCatalog})
		if err != nil {
			b.Fatalf("Failed to create catalog: %v", err)
		}
		for j := 0; j < perCatalog; j++ {
			page, err := store.Create(ctx, MenuCreate{
				Name:     fmt.Sprintf("menu-%d-%d", i, j),
				ParentID: &catalog.ID,
				Path:     fmt.Sprintf("/c%d/m%d", i, j),
			})
			if err != nil {
				b.Fatalf("Failed to create menu: %v", err)
			}
			_, err = store.Create(ctx, MenuCreate{
				Name:          fmt.Sprintf("button-%d-%d", i, j),
				ParentID:      &page.ID,
				Type:          TypeButton,
				PermissionKey: fmt.Sprintf("c%d:m%d:edit", i, j),
			})
			if err != nil {
				b.Fatalf("Failed to create button: %v", err)
			}
		}
	}
}

// BenchmarkFullTree_Uncached measures building the projection from rows
func BenchmarkFullTree_Uncached(b *testing.B) {
	store := NewStore(Config{DB: storagetest.NewDB(b)})
	seedBenchTree(b, store, 10, 10)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.FullTree(ctx, nil, ""); err != nil {
			b.Fatalf("FullTree failed: %v", err)
		}
	}
}

// BenchmarkFullTree_Cached measures reading the projection back from cache
func BenchmarkFullTree_Cached(b *testing.B) {
	store := NewStore(Config{DB: storagetest.NewDB(b), Cache: cache.NewMemoryCache(100)})
	seedBenchTree(b, store, 10, 10)
	ctx := context.Background()
	if _, err := store.FullTree(ctx, nil, ""); err != nil {
		b.Fatalf("FullTree failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.FullTree(ctx, nil, ""); err != nil {
			b.Fatalf("FullTree failed: %v", err)
		}
	}
}

// BenchmarkRouteTree measures the route projection over the same tree
func BenchmarkRouteTree(b *testing.B) {
	store := NewStore(Config{DB: storagetest.NewDB(b)})
	seedBenchTree(b, store, 10, 10)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.RouteTree(ctx); err != nil {
			b.Fatalf("RouteTree failed: %v", err)
		}
	}
}
