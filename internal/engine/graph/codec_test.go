package graph

import (
	"testing"
)

func TestEncodeAdjacency_SingleEdge(t *testing.T) {
	adj := adjOf([2]int{1, 2})

	data, err := EncodeAdjacency(adj)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"` + n(1).String() + `":["` + n(2).String() + `"],"` + n(2).String() + `":[]}`
	if string(data) != want {
		t.Fatalf("unexpected encoding\n got: %s\nwant: %s", data, want)
	}
}

func TestDecodeAdjacency(t *testing.T) {
	raw := `{"` + n(1).String() + `":["` + n(3).String() + `","` + n(2).String() + `","` + n(2).String() + `"]}`

	adj, err := DecodeAdjacency([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if adj.EdgeCount() != 2 {
		t.Fatalf("expected duplicate targets to collapse to 2 edges, got %d", adj.EdgeCount())
	}
	if !adj.HasNode(n(2)) || !adj.HasNode(n(3)) {
		t.Fatal("expected edge targets to be present as keys")
	}

	again, err := EncodeAdjacency(adj)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	decoded, err := DecodeAdjacency(again)
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if decoded.EdgeCount() != 2 || !decoded.HasEdge(n(1), n(2)) || !decoded.HasEdge(n(1), n(3)) {
		t.Fatalf("unexpected edges after second pass: %v", decoded.Edges())
	}
}

func TestDecodeAdjacency_EmptyAndInvalid(t *testing.T) {
	for _, raw := range []string{"", "null", "  {} "} {
		adj, err := DecodeAdjacency([]byte(raw))
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if len(adj) != 0 {
			t.Fatalf("expected empty adjacency for %q", raw)
		}
	}

	for _, raw := range []string{`{"not-a-uuid":[]}`, `{"` + n(1).String() + `":["nope"]}`, `[1,2]`} {
		if _, err := DecodeAdjacency([]byte(raw)); err == nil {
			t.Fatalf("expected error decoding %q", raw)
		}
	}
}
