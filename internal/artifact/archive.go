package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/medinsight/medinsight/internal/query"
	"github.com/medinsight/medinsight/internal/storage"
)

// Archive writes result tables to an object store under day-partitioned keys.
type Archive struct {
	store storage.ObjectStore
	now   func() time.Time
	newID func() string
}

func NewArchive(store storage.ObjectStore) (*Archive, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Archive{store: store, now: time.Now, newID: uuid.NewString}, nil
}

func (a *Archive) Save(ctx context.Context, table query.Table) (string, error) {
	data, err := Encode(table)
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	key, err := storage.AnswerArtifactPath(a.now(), a.newID())
	if err != nil {
		return "", err
	}
	if _, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: ContentType}); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return key, nil
}

func (a *Archive) Load(ctx context.Context, key string) (query.Table, error) {
	if err := storage.ValidateAnswerKey(key); err != nil {
		return query.Table{}, err
	}
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return query.Table{}, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return query.Table{}, fmt.Errorf("read artifact %q: %w", key, err)
	}
	table, err := Decode(data)
	if err != nil {
		return query.Table{}, fmt.Errorf("decode artifact %q: %w", key, err)
	}
	return table, nil
}

// List returns the artifacts written on the UTC day of day.
func (a *Archive) List(ctx context.Context, day time.Time) ([]storage.ObjectInfo, error) {
	ts := day.UTC()
	return a.store.List(ctx, fmt.Sprintf("answers/%04d/%02d/%02d/", ts.Year(), ts.Month(), ts.Day()))
}

// Prune deletes artifacts last modified before cutoff and returns how many
// were removed.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	objects, err := a.store.List(ctx, "answers/")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, object := range objects {
		if !object.LastModified.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("prune artifact %q: %w", object.Key, err)
		}
		removed++
	}
	return removed, nil
}
