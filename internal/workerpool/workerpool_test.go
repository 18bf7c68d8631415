package workerpool

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestRunProcessesAllJobs(t *testing.T) {
	jobs := make([]int, 100)
	for i := range jobs {
		jobs[i] = i
	}

	var mu sync.Mutex
	var got []int

	Run(context.Background(), jobs, 8,
		func(_ context.Context, j int) int { return j * 2 },
		func(r int) {
			mu.Lock()
			got = append(got, r)
			mu.Unlock()
		},
	)

	if len(got) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(got), len(jobs))
	}
	sort.Ints(got)
	for i, v := range got {
		if v != i*2 {
			t.Fatalf("result %d = %d, want %d", i, v, i*2)
		}
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := make([]int, 10_000)

	var n int
	var mu sync.Mutex
	cancel() // cancel before the feeder even starts

	Run(ctx, jobs, 4,
		func(_ context.Context, j int) int { return j },
		func(int) {
			mu.Lock()
			n++
			mu.Unlock()
		},
	)
	mu.Lock()
	defer mu.Unlock()
	if n == len(jobs) {
		t.Fatal("expected cancellation to short-circuit feeding, but every job was processed")
	}
}

func TestPoolStreaming(t *testing.T) {
	p := NewPool(context.Background(), 4, func(_ context.Context, j int) int { return j + 1 })

	go func() {
		for i := 0; i < 20; i++ {
			p.Submit(i)
		}
		p.Close()
	}()

	var got []int
	for r := range p.Results() {
		got = append(got, r)
	}
	if len(got) != 20 {
		t.Fatalf("got %d results, want 20", len(got))
	}
}
