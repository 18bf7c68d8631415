package pairer

import "testing"

type entry struct{ URL string }

func entryURL(e entry) string { return e.URL }

func recordStream(urls []string) func() (Record, bool) {
	i := 0
	return func() (Record, bool) {
		if i >= len(urls) {
			return Record{}, false
		}
		r := Record{URL: urls[i], Bytes: []byte(urls[i])}
		i++
		return r, true
	}
}

func TestPairExactOrder(t *testing.T) {
	entries := []entry{{"http://a/"}, {"http://b/"}, {"http://c/"}}
	next := recordStream([]string{"http://a/", "http://b/", "http://c/"})

	var got []Pair[entry]
	if err := Pair("shard", entries, entryURL, next, func(p Pair[entry]) { got = append(got, p) }); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d pairs, want 3", len(got))
	}
	for i, p := range got {
		if p.Entry.URL != entries[i].URL {
			t.Errorf("pair %d entry = %s, want %s", i, p.Entry.URL, entries[i].URL)
		}
	}
}

func TestPairSkipsOutOfOrderExtraRecords(t *testing.T) {
	entries := []entry{{"http://a/"}, {"http://b/"}}
	// one stray record ("http://x/") appears before "b" is ready.
	next := recordStream([]string{"http://a/", "http://x/", "http://b/"})

	var got []Pair[entry]
	if err := Pair("shard", entries, entryURL, next, func(p Pair[entry]) { got = append(got, p) }); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d pairs, want 2", len(got))
	}
}

func TestPairPercentDecodedMatch(t *testing.T) {
	entries := []entry{{"http://x/a%20b"}}
	next := recordStream([]string{"http://x/a b"})

	var got []Pair[entry]
	if err := Pair("shard", entries, entryURL, next, func(p Pair[entry]) { got = append(got, p) }); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected percent-decoded URLs to match, got %d pairs", len(got))
	}
}

func TestPairFailsAfterThreeMismatches(t *testing.T) {
	entries := []entry{{"http://target/"}}
	next := recordStream([]string{"http://one/", "http://two/", "http://three/", "http://four/"})

	err := Pair("shard", entries, entryURL, next, func(Pair[entry]) {
		t.Fatal("no pair should have been emitted")
	})
	if err == nil {
		t.Fatal("expected PairingFailed")
	}
	if !IsPairingFailed(err) {
		t.Fatalf("expected PairingFailed, got %T: %v", err, err)
	}
}

func TestPairFailsOnExhaustedRecordStream(t *testing.T) {
	entries := []entry{{"http://a/"}, {"http://b/"}}
	next := recordStream([]string{"http://a/"})

	err := Pair("shard", entries, entryURL, next, func(Pair[entry]) {})
	if !IsPairingFailed(err) {
		t.Fatalf("expected PairingFailed when records run out, got %v", err)
	}
}
