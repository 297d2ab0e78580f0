package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/treerag/internal/db"
	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

const keySegment = "doc:"

// store is the consumer interface for document trees (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores document trees as JSON values keyed by document ID.
type Repo struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a document tree repository. Keys live under keyPrefix.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix + keySegment, now: time.Now}
}

type storedTree struct {
	ID        string     `json:"id"`
	UpdatedAt int64      `json:"updated_at"`
	Root      *tree.Node `json:"root"`
}

// Put creates or replaces the tree of a document. Returns true if created.
func (r *Repo) Put(ctx context.Context, docID string, root *tree.Node) (bool, error) {
	key := r.key(docID)
	data, err := json.Marshal(storedTree{ID: docID, UpdatedAt: r.now().UnixMilli(), Root: root})
	if err != nil {
		return false, fmt.Errorf("marshal tree: %w", err)
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.Set(ctx, key, data); err != nil {
		return false, fmt.Errorf("set %s: %w", key, err)
	}
	return !exists, nil
}

// Get returns the tree of a document.
func (r *Repo) Get(ctx context.Context, docID string) (*tree.Node, error) {
	key := r.key(docID)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrTreeNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var st storedTree
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if st.Root == nil {
		return nil, fmt.Errorf("decode %s: %w: empty root", key, domain.ErrInvalidTree)
	}
	return st.Root, nil
}

// Delete removes the tree of a document.
func (r *Repo) Delete(ctx context.Context, docID string) error {
	key := r.key(docID)
	removed, err := r.store.Del(ctx, key)
	if err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	if !removed {
		return domain.ErrTreeNotFound
	}
	return nil
}

// List returns the IDs of all stored documents, sorted.
func (r *Repo) List(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, r.prefix))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repo) key(docID string) string {
	return r.prefix + docID
}
