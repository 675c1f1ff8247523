package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// ScanPage returns up to limit documents of query ordered by document id, starting after the
// id in after. The returned cursor is empty once the collection is exhausted.
func ScanPage(ctx context.Context, query firestore.Query, after string, limit int) ([]*firestore.DocumentSnapshot, string, error) {
	if limit <= 0 {
		limit = 100
	}
	q := query.OrderBy(firestore.DocumentID, firestore.Asc).Limit(limit)
	if after != "" {
		q = q.StartAfter(after)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	docs := make([]*firestore.DocumentSnapshot, 0, limit)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, "", WrapError("scan", err)
		}
		docs = append(docs, snap)
	}

	cursor := ""
	if len(docs) == limit {
		cursor = docs[len(docs)-1].Ref.ID
	}
	return docs, cursor, nil
}
