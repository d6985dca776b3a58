package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	val int64
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

// fakeSequences simulates the sys_sequences upsert: increments for the
// strict/cached queries, overwrites for SetNextNumber.
type fakeSequences struct {
	mu      sync.Mutex
	current int64
	queries int
}

func (f *fakeSequences) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	if strings.Contains(sql, "SET current_val = $2") {
		if v, ok := args[1].(int64); ok {
			f.current = v
		}
		return &fakeRow{val: f.current}
	}

	var increment int64 = 1
	if len(args) == 2 {
		if v, ok := args[1].(int64); ok {
			increment = v
		}
	}
	f.current += increment
	return &fakeRow{val: f.current}
}

var march = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	db := &fakeSequences{}
	svc := New(db)
	ctx := context.Background()
	cfg := DefaultConfig("MOV")

	for i, want := range []string{"MOV-2025-00001", "MOV-2025-00002", "MOV-2025-00003"} {
		num, err := svc.GetNextNumber(ctx, cfg, nil, march)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if num != want {
			t.Errorf("call %d: expected %s, got %s", i+1, want, num)
		}
	}
	if db.queries != 3 {
		t.Errorf("strict should hit the DB per call, got %d queries", db.queries)
	}
}

func TestGetNextNumber_Formatting(t *testing.T) {
	db := &fakeSequences{}
	svc := New(db)
	ctx := context.Background()

	cfg := Config{Prefix: "ADJ", IncludeYear: false, PadWidth: 3, ResetPeriod: "never"}
	num, err := svc.GetNextNumber(ctx, cfg, nil, march)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ADJ-001" {
		t.Errorf("expected ADJ-001, got %s", num)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	db := &fakeSequences{}
	svc := New(db)
	ctx := context.Background()
	cfg := DefaultConfig("MOV")
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	// first call reserves 1..10 in one round trip
	num, err := svc.GetNextNumber(ctx, cfg, opts, march)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "MOV-2025-00001" {
		t.Errorf("expected MOV-2025-00001, got %s", num)
	}
	if db.current != 10 {
		t.Errorf("expected reserved watermark 10, got %d", db.current)
	}

	// the rest of the range is served from memory
	for i := 2; i <= 10; i++ {
		if _, err := svc.GetNextNumber(ctx, cfg, opts, march); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if db.queries != 1 {
		t.Errorf("expected a single reservation query, got %d", db.queries)
	}

	// range exhausted, next call reserves 11..20
	num, err = svc.GetNextNumber(ctx, cfg, opts, march)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "MOV-2025-00011" {
		t.Errorf("expected MOV-2025-00011, got %s", num)
	}
	if db.current != 20 {
		t.Errorf("expected reserved watermark 20, got %d", db.current)
	}
}

func TestSetNextNumber_InvalidatesCachedRange(t *testing.T) {
	db := &fakeSequences{}
	svc := New(db)
	ctx := context.Background()
	cfg := DefaultConfig("MOV")
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	if _, err := svc.GetNextNumber(ctx, cfg, opts, march); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.SetNextNumber(ctx, cfg, march, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// cached range 2..10 must be dropped, next call reserves from 500
	num, err := svc.GetNextNumber(ctx, cfg, opts, march)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "MOV-2025-00501" {
		t.Errorf("expected MOV-2025-00501, got %s", num)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"MOV-2025-00042", 42},
		{"ADJ-007", 7},
		{"garbage", -1},
	}
	for _, tt := range tests {
		if got := ParseNumber(tt.in); got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
