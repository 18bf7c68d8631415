package fetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
	"github.com/DavidNemeskey/cc-corpus-go/internal/objectstore"
)

type fakeReader struct {
	mu       sync.Mutex
	failN    map[string]int // key -> number of times to fail before succeeding
	notFound map[string]bool
	calls    map[string]int
}

func (f *fakeReader) ReadRange(_ context.Context, key string, offset, length int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.notFound[key] {
		return nil, &objectstore.StatusError{Key: key, Status: 404}
	}
	if f.failN[key] > 0 {
		f.failN[key]--
		return nil, &objectstore.StatusError{Key: key, Status: 500}
	}
	return []byte(key), nil
}

func TestFetchAllRetriesThenSucceeds(t *testing.T) {
	reader := &fakeReader{
		failN: map[string]int{"a": 2},
		calls: map[string]int{},
	}
	f := NewFetcher(reader, Config{Workers: 2, Retries: 5, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond})

	var mu sync.Mutex
	results := map[string]Result{}
	f.FetchAll(context.Background(), []index.FileRange{{File: "a", Offset: 0, Length: 1}}, func(r Result) {
		mu.Lock()
		results[r.Range.File] = r
		mu.Unlock()
	})

	r := results["a"]
	if r.Err != nil {
		t.Fatalf("expected eventual success, got %v", r.Err)
	}
	if r.Tries != 3 {
		t.Fatalf("tries = %d, want 3", r.Tries)
	}
}

func TestFetchAllNotFoundDoesNotRetry(t *testing.T) {
	reader := &fakeReader{notFound: map[string]bool{"missing": true}, calls: map[string]int{}}
	f := NewFetcher(reader, Config{Workers: 1, Retries: 5, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond})

	var got Result
	f.FetchAll(context.Background(), []index.FileRange{{File: "missing", Offset: 0, Length: 1}}, func(r Result) {
		got = r
	})

	if got.Err == nil {
		t.Fatal("expected error for missing range")
	}
	reader.mu.Lock()
	calls := reader.calls["missing"]
	reader.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a 404, got %d", calls)
	}
}

func TestFetchAllExhaustsRetries(t *testing.T) {
	reader := &fakeReader{failN: map[string]int{"x": 100}, calls: map[string]int{}}
	f := NewFetcher(reader, Config{Workers: 1, Retries: 3, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond})

	var got Result
	f.FetchAll(context.Background(), []index.FileRange{{File: "x", Offset: 0, Length: 1}}, func(r Result) {
		got = r
	})
	if got.Err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
