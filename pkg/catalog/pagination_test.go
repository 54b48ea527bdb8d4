package catalog

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/uuid"
)

// pageThrough simulates keyset pagination over an id-sorted snapshot: each
// page is bounded by the decoded cursor position exactly the way the query
// builder bounds the relational query.
func pageThrough(t *testing.T, codec *CursorCodec, ids []uuid.UUID, pageSize int) [][]uuid.UUID {
	t.Helper()
	sortSpec := SortSpec{Field: "id"}

	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	var pages [][]uuid.UUID
	var cursor *string
	for {
		var after *Position
		if cursor != nil {
			pos, err := codec.Decode(*cursor, KindTask, sortSpec)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			after = &pos
		}

		var page []uuid.UUID
		for _, id := range sorted {
			if after != nil && bytes.Compare(id[:], after.LastID[:]) <= 0 {
				continue
			}
			page = append(page, id)
			if len(page) == pageSize+1 {
				break
			}
		}

		more := len(page) > pageSize
		if more {
			page = page[:pageSize]
		}
		pages = append(pages, page)

		if !more {
			return pages
		}
		last := page[len(page)-1]
		token, err := codec.Encode(KindTask, sortSpec, Position{LastID: last})
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		cursor = &token
	}
}

func TestPaginationYieldsEachRowExactlyOnce(t *testing.T) {
	codec := NewCursorCodec("test-secret")

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
	}

	pages := pageThrough(t, codec, ids, 2)

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	sizes := []int{len(pages[0]), len(pages[1]), len(pages[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("expected page sizes 2,2,1, got %v", sizes)
	}

	seen := make(map[uuid.UUID]int)
	for _, page := range pages {
		for _, id := range page {
			seen[id]++
		}
	}
	if len(seen) != len(ids) {
		t.Fatalf("expected %d distinct rows, saw %d", len(ids), len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("row %s appeared %d times", id, count)
		}
	}
}

func TestPaginationExactPageBoundary(t *testing.T) {
	codec := NewCursorCodec("test-secret")

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
	}

	// 4 rows at page size 2: the n+1 probe sees only 2 rows on the second
	// fetch, so the full final page comes back without a next cursor and no
	// empty trailing page is ever issued.
	pages := pageThrough(t, codec, ids, 2)
	if len(pages) != 2 {
		t.Fatalf("expected 2 fetches for boundary case, got %d", len(pages))
	}
	if len(pages[0]) != 2 || len(pages[1]) != 2 {
		t.Fatalf("expected page sizes 2,2, got %d,%d", len(pages[0]), len(pages[1]))
	}
}
