package comments

import (
	"testing"
	"time"

	"github.com/vovakirdan/eventure-server/internal/store"
)

func comment(id int64, parent int64, minute int) *store.Comment {
	c := &store.Comment{
		ID:        id,
		EventID:   1,
		UserID:    "u",
		CreatedAt: time.Date(2026, 1, 1, 0, minute, 0, 0, time.UTC),
	}
	if parent != 0 {
		c.ParentCommentID = &parent
	}
	return c
}

func ids(nodes []*Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Comment.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestThreadBasic(t *testing.T) {
	roots := Thread([]*store.Comment{
		comment(1, 0, 1),
		comment(2, 1, 2),
		comment(3, 0, 3),
	})

	if got := ids(roots); !equalIDs(got, []int64{1, 3}) {
		t.Fatalf("roots = %v, want [1 3]", got)
	}
	if got := ids(roots[0].Replies); !equalIDs(got, []int64{2}) {
		t.Fatalf("replies of 1 = %v, want [2]", got)
	}
	if len(roots[1].Replies) != 0 {
		t.Fatalf("3 should have no replies")
	}
}

func TestThreadMissingParentBecomesRoot(t *testing.T) {
	roots := Thread([]*store.Comment{
		comment(1, 0, 1),
		comment(5, 42, 2),
		comment(6, 5, 3),
	})

	if got := ids(roots); !equalIDs(got, []int64{1, 5}) {
		t.Fatalf("roots = %v, want [1 5]", got)
	}
	if got := ids(roots[1].Replies); !equalIDs(got, []int64{6}) {
		t.Fatalf("orphan should keep its own replies, got %v", got)
	}
}

func TestThreadKeepsCreationOrder(t *testing.T) {
	roots := Thread([]*store.Comment{
		comment(1, 0, 1),
		comment(2, 1, 2),
		comment(3, 1, 3),
		comment(4, 2, 4),
		comment(5, 1, 5),
		comment(6, 0, 6),
	})

	if got := ids(roots); !equalIDs(got, []int64{1, 6}) {
		t.Fatalf("roots = %v", got)
	}
	if got := ids(roots[0].Replies); !equalIDs(got, []int64{2, 3, 5}) {
		t.Fatalf("replies of 1 = %v, want [2 3 5]", got)
	}
	if got := ids(roots[0].Replies[0].Replies); !equalIDs(got, []int64{4}) {
		t.Fatalf("replies of 2 = %v, want [4]", got)
	}
}

func TestThreadEveryCommentAppearsOnce(t *testing.T) {
	input := []*store.Comment{
		comment(1, 0, 1),
		comment(2, 1, 2),
		comment(3, 99, 3),
		comment(4, 3, 4),
		comment(5, 4, 5),
		comment(6, 6, 6), // self-parented
	}
	roots := Thread(input)

	seen := make(map[int64]int)
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			seen[n.Comment.ID]++
			walk(n.Replies)
		}
	}
	walk(roots)

	for _, c := range input {
		if seen[c.ID] != 1 {
			t.Fatalf("comment %d appears %d times", c.ID, seen[c.ID])
		}
	}
}

func TestThreadEmpty(t *testing.T) {
	roots := Thread(nil)
	if roots == nil || len(roots) != 0 {
		t.Fatalf("expected empty non-nil roots, got %v", roots)
	}
}
