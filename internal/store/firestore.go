package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FirestoreStore keeps each key as a document whose "ids" subcollection
// holds one document per element, named by position.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

type idDoc struct {
	ID  string `firestore:"id"`
	Seq int    `firestore:"seq"`
}

func NewFirestoreStore(projectID, collection string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) ids(key string) *firestore.CollectionRef {
	return s.client.Collection(s.collection).Doc(key).Collection("ids")
}

func (s *FirestoreStore) Load(ctx context.Context, key string) ([]string, error) {
	iter := s.ids(key).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate stream ids: %w", err)
		}
		var d idDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode stream id: %w", err)
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Save replaces the whole list in one transaction.
func (s *FirestoreStore) Save(ctx context.Context, key string, ids []string) error {
	coll := s.ids(key)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		iter := tx.Documents(coll)
		defer iter.Stop()

		var stale []*firestore.DocumentRef
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			stale = append(stale, doc.Ref)
		}
		for _, ref := range stale {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		for i, id := range ids {
			if err := tx.Set(coll.Doc(seqID(i)), idDoc{ID: id, Seq: i}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save stream ids: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
