package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/edgewarden/edgewarden/pkg/contracts"
	"github.com/edgewarden/edgewarden/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveResolution demonstrates persisting a resolution record.
func ExampleSQLiteStore_SaveResolution() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	resolution := &contracts.Resolution{
		ID:        "7b1d2c3e-0000-0000-0000-000000000001",
		Valid:     true,
		Fulfilled: []string{"camera", "overlay"},
		StartedAt: time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
		Passes:    1,
	}
	services := map[string]contracts.Service{
		"camera":  {Contract: contracts.Contract{Slug: "camera", Version: "2.1.0"}},
		"overlay": {Contract: contracts.Contract{Slug: "overlay", Version: "1.4.0"}, Optional: true},
	}

	record, err := stores.NewResolutionRecord(resolution, services)
	if err != nil {
		log.Fatal(err)
	}

	if err := store.SaveResolution(ctx, record); err != nil {
		log.Fatal(err)
	}

	// Retrieve the record with its per-service rows
	retrieved, err := store.GetResolution(ctx, resolution.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Valid: %v, Services: %d\n", retrieved.Valid, len(retrieved.Services))
	// Output: Valid: true, Services: 2
}

// ExampleSQLiteStore_ListResolutions demonstrates reading recent history.
func ExampleSQLiteStore_ListResolutions() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	services := map[string]contracts.Service{
		"camera": {Contract: contracts.Contract{Slug: "camera", Version: "2.1.0"}},
	}

	// Two resolutions, an hour apart
	for i, id := range []string{
		"7b1d2c3e-0000-0000-0000-00000000000a",
		"7b1d2c3e-0000-0000-0000-00000000000b",
	} {
		resolution := &contracts.Resolution{
			ID:        id,
			Valid:     true,
			Fulfilled: []string{"camera"},
			StartedAt: time.Date(2025, 11, 3, 9+i, 0, 0, 0, time.UTC),
			Passes:    1,
		}
		record, err := stores.NewResolutionRecord(resolution, services)
		if err != nil {
			log.Fatal(err)
		}
		if err := store.SaveResolution(ctx, record); err != nil {
			log.Fatal(err)
		}
	}

	// Newest resolution comes back first
	records, err := store.ListResolutions(ctx, 10)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Records: %d, Newest: %s\n", len(records), records[0].ID)
	// Output: Records: 2, Newest: 7b1d2c3e-0000-0000-0000-00000000000b
}
