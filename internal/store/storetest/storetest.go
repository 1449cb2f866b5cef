// Package storetest holds a conformance suite shared by store backends.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/store"
)

type note struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Count int    `json:"count"`
}

// Run exercises a fresh store returned by open
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := open(t)

		id, err := store.CreateDoc(ctx, s, store.CollectionClients, "owner-1", "", note{Title: "a"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := store.GetOne[note](ctx, s, store.CollectionClients, id)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Title)

		doc, err := s.Get(ctx, store.CollectionClients, id)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", doc.OwnerID)
		assert.False(t, doc.CreatedAt.IsZero())
	})

	t.Run("explicit id conflicts", func(t *testing.T) {
		s := open(t)

		_, err := s.Create(ctx, store.CollectionUsers, "", "fixed", []byte(`{}`))
		require.NoError(t, err)
		_, err = s.Create(ctx, store.CollectionUsers, "", "fixed", []byte(`{}`))
		assert.ErrorIs(t, err, store.ErrExists)
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)

		_, err := s.Get(ctx, store.CollectionClients, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("all filters by owner in creation order", func(t *testing.T) {
		s := open(t)

		for _, n := range []struct{ owner, title string }{
			{"o1", "first"}, {"o2", "other"}, {"o1", "second"},
		} {
			_, err := store.CreateDoc(ctx, s, store.CollectionTemplates, n.owner, "", note{Title: n.title})
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		mine, err := store.GetAll[note](ctx, s, store.CollectionTemplates, "o1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "first", mine[0].Title)
		assert.Equal(t, "second", mine[1].Title)

		all, err := s.All(ctx, store.CollectionTemplates, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("update merges fields", func(t *testing.T) {
		s := open(t)

		id, err := store.CreateDoc(ctx, s, store.CollectionInvoices, "o1", "", note{Title: "t", Body: "b", Count: 1})
		require.NoError(t, err)

		require.NoError(t, s.Update(ctx, store.CollectionInvoices, id, map[string]any{"count": 5}))

		got, err := store.GetOne[note](ctx, s, store.CollectionInvoices, id)
		require.NoError(t, err)
		assert.Equal(t, note{Title: "t", Body: "b", Count: 5}, *got)

		err = s.Update(ctx, store.CollectionInvoices, "missing", map[string]any{"count": 1})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete checks owner", func(t *testing.T) {
		s := open(t)

		id, err := s.Create(ctx, store.CollectionClients, "o1", "", []byte(`{"title":"x"}`))
		require.NoError(t, err)

		assert.ErrorIs(t, s.Delete(ctx, store.CollectionClients, id, "o2"), store.ErrNotFound)
		require.NoError(t, s.Delete(ctx, store.CollectionClients, id, "o1"))
		assert.ErrorIs(t, s.Delete(ctx, store.CollectionClients, id, ""), store.ErrNotFound)
	})

	t.Run("empty collection rejected", func(t *testing.T) {
		s := open(t)

		_, err := s.All(ctx, "", "")
		assert.ErrorIs(t, err, store.ErrInvalidCollection)
		_, err = s.Create(ctx, "", "", "", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, store.ErrInvalidCollection)
	})
}
