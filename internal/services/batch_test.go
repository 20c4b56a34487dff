package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopcore/internal/domain"
	"shopcore/internal/services"
)

func TestReserveBatchAllOrNothing(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)
	ctx := context.Background()

	err := svc.ReserveBatch(ctx, []services.BatchItem{
		{VariantID: "v-red", Qty: 1},
		{VariantID: "v-blue", Qty: 999},
	}, testActor)
	if !errors.Is(err, services.ErrOutOfStock) {
		t.Fatalf("want ErrOutOfStock, got %v", err)
	}

	// neither item was touched
	if st := mustStock(t, repo, "v-red"); st.QuantityReserved != 0 {
		t.Fatalf("v-red mutated by failed batch: %+v", st)
	}
	if st := mustStock(t, repo, "v-blue"); st.QuantityReserved != 0 {
		t.Fatalf("v-blue mutated by failed batch: %+v", st)
	}

	entries, err := repo.ListLedger(ctx, "v-red", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed batch wrote ledger entries: %d", len(entries))
	}
}

func TestReserveBatchHappyPath(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)
	ctx := context.Background()

	a := services.Audit{PerformedBy: "order-svc", Ref: domain.Ref{Type: "ORDER", ID: "ord-7"}}
	if err := svc.ReserveBatch(ctx, []services.BatchItem{
		{VariantID: "v-red", Qty: 2},
		{VariantID: "v-blue", Qty: 3},
	}, a); err != nil {
		t.Fatal(err)
	}
	if st := mustStock(t, repo, "v-red"); st.QuantityReserved != 2 {
		t.Fatalf("v-red: %+v", st)
	}
	if st := mustStock(t, repo, "v-blue"); st.QuantityReserved != 3 {
		t.Fatalf("v-blue: %+v", st)
	}

	if err := svc.ConfirmSaleBatch(ctx, []services.BatchItem{
		{VariantID: "v-red", Qty: 2},
		{VariantID: "v-blue", Qty: 3},
	}, a); err != nil {
		t.Fatal(err)
	}
	if st := mustStock(t, repo, "v-red"); st.QuantityOnHand != 3 || st.QuantityReserved != 0 {
		t.Fatalf("v-red after confirm: %+v", st)
	}
	if st := mustStock(t, repo, "v-blue"); st.QuantityOnHand != 0 || st.QuantityReserved != 0 {
		t.Fatalf("v-blue after confirm: %+v", st)
	}
}

func TestBatchMergesDuplicateLines(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)
	ctx := context.Background()

	// two lines for the same variant in one call merge into one mutation
	if err := svc.ReserveBatch(ctx, []services.BatchItem{
		{VariantID: "v-red", Qty: 2},
		{VariantID: "v-red", Qty: 2},
	}, testActor); err != nil {
		t.Fatal(err)
	}
	if st := mustStock(t, repo, "v-red"); st.QuantityReserved != 4 {
		t.Fatalf("want reserved=4, got %+v", st)
	}
	entries, err := repo.ListLedger(ctx, "v-red", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("merged lines should write one ledger entry, got %d", len(entries))
	}

	// merged precondition: 2+2 > 1 remaining available
	err = svc.ReserveBatch(ctx, []services.BatchItem{
		{VariantID: "v-red", Qty: 1},
		{VariantID: "v-red", Qty: 1},
	}, testActor)
	if !errors.Is(err, services.ErrOutOfStock) {
		t.Fatalf("want ErrOutOfStock on merged quantity, got %v", err)
	}
}

func TestReleaseBatchRestoresState(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)
	ctx := context.Background()

	items := []services.BatchItem{
		{VariantID: "v-red", Qty: 2},
		{VariantID: "v-blue", Qty: 1},
	}
	if err := svc.ReserveBatch(ctx, items, testActor); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReleaseReservationBatch(ctx, items, testActor); err != nil {
		t.Fatal(err)
	}
	if st := mustStock(t, repo, "v-red"); st.QuantityOnHand != 5 || st.QuantityReserved != 0 {
		t.Fatalf("v-red not restored: %+v", st)
	}
	if st := mustStock(t, repo, "v-blue"); st.QuantityOnHand != 3 || st.QuantityReserved != 0 {
		t.Fatalf("v-blue not restored: %+v", st)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)
	ctx := context.Background()

	const n = 5 // v-red has exactly 5 on hand
	var wg sync.WaitGroup
	errs := make(chan error, n+1)
	for i := 0; i < n+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, "v-red", 1, testActor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, oosCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, services.ErrOutOfStock):
			oosCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != n || oosCount != 1 {
		t.Fatalf("want %d successes and 1 out-of-stock, got %d/%d", n, okCount, oosCount)
	}
	st := mustStock(t, repo, "v-red")
	if st.QuantityReserved != n || st.QuantityOnHand != n {
		t.Fatalf("final state: %+v", st)
	}
}

func TestOppositeOrderBatchesComplete(t *testing.T) {
	db := memdb(t)
	svc, _ := newEngine(t, db)
	ctx := context.Background()

	// Two workers hammer the same two variants in opposite list order.
	// Canonical lock ordering must keep them from deadlocking.
	const rounds = 50
	forward := []services.BatchItem{{VariantID: "v-red", Qty: 1}, {VariantID: "v-blue", Qty: 1}}
	backward := []services.BatchItem{{VariantID: "v-blue", Qty: 1}, {VariantID: "v-red", Qty: 1}}

	run := func(items []services.BatchItem) error {
		for i := 0; i < rounds; i++ {
			if err := svc.ReserveBatch(ctx, items, testActor); err != nil {
				return err
			}
			if err := svc.ReleaseReservationBatch(ctx, items, testActor); err != nil {
				return err
			}
		}
		return nil
	}

	done := make(chan error, 2)
	go func() { done <- run(forward) }()
	go func() { done <- run(backward) }()

	timeout := time.After(30 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-timeout:
			t.Fatal("batches deadlocked")
		}
	}
}

func TestBatchRejectsNonPositiveQty(t *testing.T) {
	db := memdb(t)
	svc, _ := newEngine(t, db)

	err := svc.ReserveBatch(context.Background(), []services.BatchItem{
		{VariantID: "v-red", Qty: 0},
	}, testActor)
	if !errors.Is(err, services.ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}
}

func TestBatchUnknownVariantAborts(t *testing.T) {
	db := memdb(t)
	svc, repo := newEngine(t, db)

	err := svc.ReserveBatch(context.Background(), []services.BatchItem{
		{VariantID: "v-red", Qty: 1},
		{VariantID: "ghost", Qty: 1},
	}, testActor)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if st := mustStock(t, repo, "v-red"); st.QuantityReserved != 0 {
		t.Fatalf("v-red mutated by aborted batch: %+v", st)
	}
}
