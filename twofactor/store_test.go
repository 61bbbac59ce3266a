package twofactor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test2fa"), mr
}

func hashOf(code string) string {
	sum := sha256.Sum256([]byte("u1:" + code))
	return hex.EncodeToString(sum[:])
}

func TestSetupLifecycle(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	setup := &Setup{Secret: "SECRET", Codes: []string{"AAAA1111"}, CreatedAt: time.Now().Unix()}
	if err := store.SaveSetup(ctx, "u1", setup, 10*time.Minute); err != nil {
		t.Fatalf("SaveSetup failed: %v", err)
	}

	got, err := store.GetSetup(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSetup failed: %v", err)
	}
	if got.Secret != "SECRET" || len(got.Codes) != 1 {
		t.Fatalf("unexpected setup: %+v", got)
	}

	// A second SaveSetup overwrites: last writer wins before commit.
	if err := store.SaveSetup(ctx, "u1", &Setup{Secret: "OTHER", CreatedAt: time.Now().Unix()}, 10*time.Minute); err != nil {
		t.Fatalf("SaveSetup overwrite failed: %v", err)
	}
	got, err = store.GetSetup(ctx, "u1")
	if err != nil || got.Secret != "OTHER" {
		t.Fatalf("expected overwritten setup, got %+v err %v", got, err)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.GetSetup(ctx, "u1"); !errors.Is(err, ErrSetupNotFound) {
		t.Fatalf("expected expired setup gone, got %v", err)
	}
}

func TestPromoteCommitsRecordAndCodes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSetup(ctx, "u1", &Setup{Secret: "SECRET", CreatedAt: 1}, 10*time.Minute); err != nil {
		t.Fatalf("SaveSetup failed: %v", err)
	}

	rec := &Record{Secret: "SECRET", Enabled: true, CreatedAt: 1, LastUsed: 1}
	hashes := []string{hashOf("AAAA1111"), hashOf("BBBB2222")}
	if err := store.Promote(ctx, "u1", rec, hashes, time.Hour); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !got.Enabled || got.Secret != "SECRET" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// The pending setup is gone once committed.
	if _, err := store.GetSetup(ctx, "u1"); !errors.Is(err, ErrSetupNotFound) {
		t.Fatalf("expected setup deleted, got %v", err)
	}

	n, err := store.RemainingCodes(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 remaining codes, got %d err %v", n, err)
	}
}

func TestPromoteReplacesStaleCodeKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := &Record{Secret: "OLD", Enabled: true, CreatedAt: 1, LastUsed: 1}
	if err := store.Promote(ctx, "u1", rec, []string{hashOf("OLD11111")}, time.Hour); err != nil {
		t.Fatalf("first Promote failed: %v", err)
	}

	rec2 := &Record{Secret: "NEW", Enabled: true, CreatedAt: 2, LastUsed: 2}
	if err := store.Promote(ctx, "u1", rec2, []string{hashOf("NEW22222")}, time.Hour); err != nil {
		t.Fatalf("second Promote failed: %v", err)
	}

	ok, err := store.ConsumeCode(ctx, "u1", hashOf("OLD11111"))
	if err != nil || ok {
		t.Fatalf("expected stale code dead, ok=%v err=%v", ok, err)
	}
	ok, err = store.ConsumeCode(ctx, "u1", hashOf("NEW22222"))
	if err != nil || !ok {
		t.Fatalf("expected fresh code live, ok=%v err=%v", ok, err)
	}
}

func TestConsumeCodeExactlyOnceConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := hashOf("AAAA1111")
	rec := &Record{Secret: "SECRET", Enabled: true, CreatedAt: 1, LastUsed: 1}
	if err := store.Promote(ctx, "u1", rec, []string{hash}, time.Hour); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var consumed atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ConsumeCode(ctx, "u1", hash)
			if err != nil {
				t.Errorf("ConsumeCode error: %v", err)
				return
			}
			if ok {
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()

	if consumed.Load() != 1 {
		t.Fatalf("expected exactly 1 consumption, got %d", consumed.Load())
	}
	if n, _ := store.RemainingCodes(ctx, "u1"); n != 0 {
		t.Fatalf("expected no remaining codes, got %d", n)
	}
}

func TestTouchRecordReArmsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := &Record{Secret: "SECRET", Enabled: true, CreatedAt: 1, LastUsed: 1}
	if err := store.Promote(ctx, "u1", rec, []string{hashOf("AAAA1111")}, time.Hour); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	mr.FastForward(45 * time.Minute)
	rec.LastUsed = time.Now().Unix()
	if err := store.TouchRecord(ctx, "u1", rec, time.Hour); err != nil {
		t.Fatalf("TouchRecord failed: %v", err)
	}

	// 45+45 minutes past creation only survives thanks to the re-arm.
	mr.FastForward(45 * time.Minute)
	if _, err := store.GetRecord(ctx, "u1"); err != nil {
		t.Fatalf("expected record alive, got %v", err)
	}
	if ok, _ := store.ConsumeCode(ctx, "u1", hashOf("AAAA1111")); !ok {
		t.Fatal("expected code key re-armed alongside record")
	}
}

func TestReplaceCodesSwapsSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := &Record{Secret: "SECRET", Enabled: true, CreatedAt: 1, LastUsed: 1}
	if err := store.Promote(ctx, "u1", rec, []string{hashOf("AAAA1111")}, time.Hour); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if err := store.ReplaceCodes(ctx, "u1", []string{hashOf("CCCC3333"), hashOf("DDDD4444")}, time.Hour); err != nil {
		t.Fatalf("ReplaceCodes failed: %v", err)
	}

	if ok, _ := store.ConsumeCode(ctx, "u1", hashOf("AAAA1111")); ok {
		t.Fatal("expected old code dead")
	}
	if n, _ := store.RemainingCodes(ctx, "u1"); n != 2 {
		t.Fatalf("expected 2 fresh codes, got %d", n)
	}
}

func TestDeleteAllRemovesEverything(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSetup(ctx, "u1", &Setup{Secret: "PENDING", CreatedAt: 1}, 10*time.Minute); err != nil {
		t.Fatalf("SaveSetup failed: %v", err)
	}
	rec := &Record{Secret: "SECRET", Enabled: true, CreatedAt: 1, LastUsed: 1}
	if err := store.Promote(ctx, "u1", rec, []string{hashOf("AAAA1111")}, time.Hour); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	if err := store.DeleteAll(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if _, err := store.GetRecord(ctx, "u1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected record gone, got %v", err)
	}
	if _, err := store.GetSetup(ctx, "u1"); !errors.Is(err, ErrSetupNotFound) {
		t.Fatalf("expected setup gone, got %v", err)
	}
	if n, _ := store.RemainingCodes(ctx, "u1"); n != 0 {
		t.Fatalf("expected no codes, got %d", n)
	}
	// Idempotent.
	if err := store.DeleteAll(ctx, "u1"); err != nil {
		t.Fatalf("second DeleteAll failed: %v", err)
	}
}

func TestGetRecordRejectsCorruptBlob(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("test2fa:e:u1", "not json")
	if _, err := store.GetRecord(ctx, "u1"); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("expected ErrRecordCorrupt, got %v", err)
	}
}
