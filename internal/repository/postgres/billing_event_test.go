package postgres_test

import (
	"context"
	"testing"

	"github.com/bizdesk/bizdesk/internal/repository/postgres"
	"github.com/bizdesk/bizdesk/internal/testutil"
)

func TestBillingEventRepository_MarkProcessed(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := postgres.NewBillingEventRepository(db)
	ctx := context.Background()

	first, err := repo.MarkProcessed(ctx, "evt_1", "subscription.updated")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !first {
		t.Error("first delivery reported as duplicate")
	}

	again, err := repo.MarkProcessed(ctx, "evt_1", "subscription.updated")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if again {
		t.Error("redelivery reported as new")
	}

	if err := repo.Forget(ctx, "evt_1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	retry, err := repo.MarkProcessed(ctx, "evt_1", "subscription.updated")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !retry {
		t.Error("forgotten event reported as duplicate")
	}
}
