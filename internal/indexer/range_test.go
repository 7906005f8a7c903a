package indexer

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{"single block", 5, 5, 10, []BlockRange{{From: 5, To: 5}}},
		{"exact multiple", 1, 6, 3, []BlockRange{{From: 1, To: 3}, {From: 4, To: 6}}},
		{"ragged tail", 1, 7, 3, []BlockRange{{From: 1, To: 3}, {From: 4, To: 6}, {From: 7, To: 7}}},
	}
	for _, tc := range cases {
		got, err := SplitRange(tc.from, tc.to, tc.batchSize)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: unexpected ranges: %#v", tc.name, got)
		}
	}
}

func TestSplitRangeRejectsBadInput(t *testing.T) {
	if _, err := SplitRange(1, 2, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if _, err := SplitRange(5, 4, 1); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestSafeHead(t *testing.T) {
	if got := SafeHead(100, 5); got != 95 {
		t.Fatalf("expected 95, got %d", got)
	}
	if got := SafeHead(3, 5); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
