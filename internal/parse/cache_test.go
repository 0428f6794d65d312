package parse

import (
	"fmt"
	"testing"
)

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(4)
	if err != nil {
		t.Fatal(err)
	}

	text := "x = 1\n"
	tree := &Tree{ID: 1, Path: "a.py", Text: text}
	h := Hash(text)

	if _, ok := c.Get(h); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Add(h, tree)
	got, ok := c.Get(h)
	if !ok || got != tree {
		t.Fatalf("expected cached tree back, got %v ok=%v", got, ok)
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatal(err)
	}

	hashes := make([]string, 3)
	for i := range hashes {
		text := fmt.Sprintf("x = %d\n", i)
		hashes[i] = Hash(text)
		c.Add(hashes[i], &Tree{ID: int64(i), Path: "a.py", Text: text})
	}

	if _, ok := c.Get(hashes[0]); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get(hashes[2]); !ok {
		t.Error("newest entry should be retained")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestCacheFirstStoreWins(t *testing.T) {
	c, err := NewCache(4)
	if err != nil {
		t.Fatal(err)
	}

	text := "y = 2\n"
	h := Hash(text)
	first := &Tree{ID: 1, Path: "b.py", Text: text}
	second := &Tree{ID: 2, Path: "b.py", Text: text}

	c.Add(h, first)
	c.Add(h, second)

	got, _ := c.Get(h)
	if got != first {
		t.Error("a stored entry must never be replaced for the same hash")
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	if Hash("a = 1\n") == Hash("a = 2\n") {
		t.Error("different content must hash differently")
	}
	if Hash("a = 1\n") != Hash("a = 1\n") {
		t.Error("identical content must hash identically")
	}
}

func TestClassOf(t *testing.T) {
	tree := &Tree{
		Text: `x = "value"  # value`,
		Tokens: []Token{
			{Span: Span{Start: 4, End: 11}, Class: ClassString},
			{Span: Span{Start: 13, End: 20}, Class: ClassComment},
		},
	}

	if got := tree.ClassOf(Span{Start: 0, End: 1}); got != ClassCode {
		t.Errorf("identifier span classified as %s", got)
	}
	if got := tree.ClassOf(Span{Start: 5, End: 10}); got != ClassString {
		t.Errorf("string span classified as %s", got)
	}
	if got := tree.ClassOf(Span{Start: 15, End: 20}); got != ClassComment {
		t.Errorf("comment span classified as %s", got)
	}
}
