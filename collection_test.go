package avocet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shono-io/avocet/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCollectionLifecycleAgainstFakeServer(t *testing.T) {
	documents := map[string]map[string]any{}
	revision := 0

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collection/people", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "people", "id": 42, "status": 3, "error": false, "code": 200})
	})
	mux.HandleFunc("POST /index", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "42", r.URL.Query().Get("collection"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hash", body["type"])

		writeJSON(t, w, map[string]any{"id": "42/0", "type": body["type"], "fields": body["fields"]})
	})
	mux.HandleFunc("POST /document", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "42", r.URL.Query().Get("collection"))

		var fields map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))

		revision++
		key := "9407172"
		meta := map[string]any{
			"_id":  "42/" + key,
			"_key": key,
			"_rev": fmt.Sprintf("%d", revision),
		}

		stored := map[string]any{}
		for k, v := range fields {
			stored[k] = v
		}
		for k, v := range meta {
			stored[k] = v
		}
		documents[key] = stored

		writeJSON(t, w, meta)
	})
	mux.HandleFunc("GET /document/42/{key}", func(w http.ResponseWriter, r *http.Request) {
		doc, fnd := documents[r.PathValue("key")]
		if !fnd {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]any{"error": true, "code": 404, "errorNum": 1202, "errorMessage": "document not found"})
			return
		}
		writeJSON(t, w, doc)
	})
	mux.HandleFunc("PUT /document/42/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		stored, fnd := documents[key]
		require.True(t, fnd)

		var fields map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))

		revision++
		next := map[string]any{
			"_id":  stored["_id"],
			"_key": key,
			"_rev": fmt.Sprintf("%d", revision),
		}
		meta := map[string]any{}
		for k, v := range next {
			meta[k] = v
		}
		for k, v := range fields {
			next[k] = v
		}
		documents[key] = next

		writeJSON(t, w, meta)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	db, err := NewDatabase(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx := context.Background()

	collection, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, "people", collection.Name())
	assert.Equal(t, int64(42), collection.ID())
	assert.True(t, collection.Status().IsLoaded())

	idx, err := collection.EnsureIndex(ctx, IndexHash, []string{"name"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42/0", idx.ID)
	assert.Equal(t, IndexHash, idx.Type)
	assert.Equal(t, []string{"name"}, idx.Fields)

	created, err := collection.CreateDocument(ctx, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Meta.ID)
	assert.NotEmpty(t, created.Meta.Rev)

	name, _ := created.Get("name")
	assert.Equal(t, "Ada", name)

	fetched, err := collection.ReadDocument(ctx, created.Meta.Key)
	require.NoError(t, err)
	assert.Equal(t, created.Meta.ID, fetched.Meta.ID)
	assert.Equal(t, created.Fields, fetched.Fields)

	// replacing with identical content and re-fetching keeps the field values
	_, err = collection.ReplaceDocument(ctx, created.Meta.Key, fetched.Fields)
	require.NoError(t, err)

	again, err := collection.ReadDocument(ctx, created.Meta.Key)
	require.NoError(t, err)
	assert.Equal(t, fetched.Fields, again.Fields)
	assert.NotEqual(t, fetched.Meta.Rev, again.Meta.Rev)

	// a miss surfaces as NotFoundError, not as a transport failure
	_, err = collection.ReadDocument(ctx, "no-such-key")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var se *connection.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1202, se.ErrorNum)
}

func testCollection(t *testing.T, steps ...scriptedStep) (*Collection, *scriptedConn) {
	t.Helper()

	db, conn := scriptedDatabase(t, steps...)
	return db.newCollection(collectionInfo{ID: 42, Name: "people", Status: 3}), conn
}

func TestCollectionRename(t *testing.T) {
	t.Run("should update the local name on success", func(t *testing.T) {
		collection, conn := testCollection(t, scriptedStep{})

		require.NoError(t, collection.Rename(context.Background(), "users"))
		assert.Equal(t, "users", collection.Name())

		require.Len(t, conn.requests, 1)
		assert.Equal(t, "PUT", conn.requests[0].Method)
		assert.Equal(t, "/collection/42/rename", conn.requests[0].Path)
		assert.Equal(t, map[string]any{"name": "users"}, conn.requests[0].Body)
	})

	t.Run("should keep the local name on failure", func(t *testing.T) {
		collection, _ := testCollection(t, scriptedStep{err: &connection.StatusError{Code: 409, Message: "duplicate name"}})

		err := collection.Rename(context.Background(), "users")
		require.Error(t, err)

		var ce *CollectionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "people", collection.Name())
	})
}

func TestCollectionCount(t *testing.T) {
	collection, conn := testCollection(t, scriptedStep{payload: map[string]any{"count": 5}})

	count, err := collection.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, "/collection/42/count", conn.requests[0].Path)
}

func TestCollectionCountFailureIsNotZero(t *testing.T) {
	collection, _ := testCollection(t, scriptedStep{err: assert.AnError})

	_, err := collection.Count(context.Background())
	require.Error(t, err)
}

func TestCollectionFigure(t *testing.T) {
	figures := map[string]any{
		"alive": map[string]any{"count": 5, "size": 1024},
		"dead":  map[string]any{"count": 1},
	}

	t.Run("should resolve a nested figure", func(t *testing.T) {
		collection, _ := testCollection(t, scriptedStep{payload: map[string]any{"figures": figures}})

		v, err := collection.Figure(context.Background(), "alive.size")
		require.NoError(t, err)
		assert.Equal(t, float64(1024), v)
	})

	t.Run("should fail on an unknown figure", func(t *testing.T) {
		collection, _ := testCollection(t, scriptedStep{payload: map[string]any{"figures": figures}})

		_, err := collection.Figure(context.Background(), "alive.nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "alive.nope")
	})
}

func TestCollectionWaitForSync(t *testing.T) {
	collection, conn := testCollection(t,
		scriptedStep{payload: map[string]any{"waitForSync": true}},
		scriptedStep{},
		scriptedStep{payload: map[string]any{"waitForSync": false}},
	)

	ctx := context.Background()

	waitForSync, err := collection.WaitForSync(ctx)
	require.NoError(t, err)
	assert.True(t, waitForSync)

	require.NoError(t, collection.SetWaitForSync(ctx, false))

	// reads always go back to the server, nothing is cached
	waitForSync, err = collection.WaitForSync(ctx)
	require.NoError(t, err)
	assert.False(t, waitForSync)

	require.Len(t, conn.requests, 3)
	assert.Equal(t, "GET", conn.requests[0].Method)
	assert.Equal(t, "PUT", conn.requests[1].Method)
	assert.Equal(t, map[string]any{"waitForSync": false}, conn.requests[1].Body)
	assert.Equal(t, "/collection/42/properties", conn.requests[2].Path)
}

func TestCollectionLifecycleOperations(t *testing.T) {
	cases := []struct {
		label      string
		call       func(ctx context.Context, c *Collection) error
		wantMethod string
		wantPath   string
	}{
		{"load", func(ctx context.Context, c *Collection) error { return c.Load(ctx) }, "PUT", "/collection/42/load"},
		{"unload", func(ctx context.Context, c *Collection) error { return c.Unload(ctx) }, "PUT", "/collection/42/unload"},
		{"truncate", func(ctx context.Context, c *Collection) error { return c.Truncate(ctx) }, "PUT", "/collection/42/truncate"},
		{"remove", func(ctx context.Context, c *Collection) error { return c.Remove(ctx) }, "DELETE", "/collection/42"},
	}

	for _, c := range cases {
		t.Run(c.label, func(t *testing.T) {
			collection, conn := testCollection(t, scriptedStep{})

			require.NoError(t, c.call(context.Background(), collection))
			require.Len(t, conn.requests, 1)
			assert.Equal(t, c.wantMethod, conn.requests[0].Method)
			assert.Equal(t, c.wantPath, conn.requests[0].Path)
		})
	}
}

func TestCollectionDocumentExists(t *testing.T) {
	collection, _ := testCollection(t,
		scriptedStep{payload: map[string]any{"_key": "1", "name": "Ada"}},
		scriptedStep{err: &connection.StatusError{Code: 404}},
		scriptedStep{err: assert.AnError},
	)

	ctx := context.Background()

	fnd, err := collection.DocumentExists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, fnd)

	fnd, err = collection.DocumentExists(ctx, "2")
	require.NoError(t, err)
	assert.False(t, fnd)

	// other failures keep propagating
	_, err = collection.DocumentExists(ctx, "3")
	require.Error(t, err)
}

func TestCollectionCreateDocumentWithKey(t *testing.T) {
	t.Run("should send the staged key", func(t *testing.T) {
		collection, conn := testCollection(t, scriptedStep{payload: map[string]any{"_id": "42/ada", "_key": "ada", "_rev": "1"}})

		doc, err := collection.CreateDocument(context.Background(), map[string]any{"name": "Ada"}, WithKey("ada"))
		require.NoError(t, err)
		assert.Equal(t, "ada", doc.Meta.Key)

		body, ok := conn.requests[0].Body.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ada", body["_key"])
	})

	t.Run("should generate a key on request", func(t *testing.T) {
		collection, conn := testCollection(t, scriptedStep{payload: map[string]any{"_id": "42/x", "_key": "x", "_rev": "1"}})

		_, err := collection.CreateDocument(context.Background(), map[string]any{"name": "Ada"}, WithGeneratedKey())
		require.NoError(t, err)

		body, ok := conn.requests[0].Body.(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, body["_key"])
	})
}

func TestCollectionUpdateDocument(t *testing.T) {
	collection, conn := testCollection(t, scriptedStep{payload: map[string]any{"_id": "42/1", "_key": "1", "_rev": "2"}})

	meta, err := collection.UpdateDocument(context.Background(), "1", map[string]any{"age": 37})
	require.NoError(t, err)
	assert.Equal(t, "2", meta.Rev)

	require.Len(t, conn.requests, 1)
	assert.Equal(t, "PATCH", conn.requests[0].Method)
	assert.Equal(t, "/document/42/1", conn.requests[0].Path)
}

func TestCollectionRemoveDocumentNotFound(t *testing.T) {
	collection, _ := testCollection(t, scriptedStep{err: &connection.StatusError{Code: 404}})

	err := collection.RemoveDocument(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCollectionReplaceDocumentIfChanged(t *testing.T) {
	t.Run("should skip the write when nothing changed", func(t *testing.T) {
		collection, conn := testCollection(t,
			scriptedStep{payload: map[string]any{"_key": "1", "_rev": "1", "name": "Ada"}},
		)

		replaced, err := collection.ReplaceDocumentIfChanged(context.Background(), "1", map[string]any{"name": "Ada"})
		require.NoError(t, err)
		assert.False(t, replaced)
		assert.Len(t, conn.requests, 1)
	})

	t.Run("should write when the content differs", func(t *testing.T) {
		collection, conn := testCollection(t,
			scriptedStep{payload: map[string]any{"_key": "1", "_rev": "1", "name": "Ada"}},
			scriptedStep{payload: map[string]any{"_id": "42/1", "_key": "1", "_rev": "2"}},
		)

		replaced, err := collection.ReplaceDocumentIfChanged(context.Background(), "1", map[string]any{"name": "Grace"})
		require.NoError(t, err)
		assert.True(t, replaced)

		require.Len(t, conn.requests, 2)
		assert.Equal(t, "PUT", conn.requests[1].Method)
	})
}

func TestCollectionIndexes(t *testing.T) {
	collection, conn := testCollection(t,
		scriptedStep{payload: map[string]any{"indexes": []any{
			map[string]any{"id": "42/0", "type": "primary", "fields": []string{"_id"}},
			map[string]any{"id": "42/1", "type": "hash", "fields": []string{"name"}, "unique": true},
		}}},
		scriptedStep{payload: map[string]any{"id": "42/1", "type": "hash", "fields": []string{"name"}, "unique": true}},
		scriptedStep{},
		scriptedStep{err: &connection.StatusError{Code: 404}},
	)

	ctx := context.Background()

	indexes, err := collection.Indexes(ctx)
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, IndexPrimary, indexes[0].Type)
	assert.True(t, indexes[1].Unique)

	idx, err := collection.Index(ctx, "42/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, idx.Fields)
	assert.Equal(t, "/index/42/42%2F1", conn.requests[1].Path)

	require.NoError(t, collection.RemoveIndex(ctx, "42/1"))

	err = collection.RemoveIndex(ctx, "42/9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
