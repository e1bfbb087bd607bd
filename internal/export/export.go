// Package export writes collected posts to portable JSON documents.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// pageSize bounds each store read while paging through the full dataset.
const pageSize = 200

// Document is the envelope written around exported posts.
type Document struct {
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Posts      []types.Post `json:"posts"`
}

// Posts writes every non-deleted post matching filters to w as a single
// JSON document. Filter pagination fields are ignored; the export always
// covers the full result set. Posts missing a content hash get one computed
// at export time so consumers can verify integrity.
func Posts(ctx context.Context, st store.Store, filters store.PostFilters, w io.Writer) (int, error) {
	doc := Document{
		ExportedAt: time.Now().UTC(),
		Posts:      []types.Post{},
	}

	filters.Limit = pageSize
	filters.Offset = 0
	for {
		page, err := st.ListPosts(ctx, filters)
		if err != nil {
			return 0, fmt.Errorf("failed to list posts: %w", err)
		}
		for i := range page {
			if page[i].ContentHash == "" {
				page[i].ContentHash = page[i].ComputeContentHash()
			}
		}
		doc.Posts = append(doc.Posts, page...)
		if len(page) < pageSize {
			break
		}
		filters.Offset += pageSize
	}
	doc.Count = len(doc.Posts)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("failed to encode export: %w", err)
	}
	return doc.Count, nil
}
