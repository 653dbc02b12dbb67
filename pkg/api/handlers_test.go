package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/storage"
)

func newTestRouter(t *testing.T, maxBatchSize int, batchOptions ...batch.Option) (*mux.Router, *storage.StorageEngine) {
	t.Helper()
	dir := t.TempDir()
	engine, err := storage.NewStorageEngine(
		storage.WithWALDir(filepath.Join(dir, "wal")),
		storage.WithDataDir(filepath.Join(dir, "data")),
		storage.WithDurabilityLevel(storage.DurabilityNone),
		storage.WithMaxBatchSize(maxBatchSize),
	)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	handler := NewHandler(engine, engine, zerolog.Nop(), batchOptions...)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router, engine
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBulk(t *testing.T, w *httptest.ResponseRecorder) BulkWriteResponse {
	t.Helper()
	var resp BulkWriteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandler_HandleBulkWrite(t *testing.T) {
	router, engine := newTestRouter(t, 2)

	req := BulkWriteRequest{Operations: []BulkOperation{
		{Op: "set", ID: "1", Data: map[string]interface{}{"name": "Alice", "age": 30}},
		{Op: "set", ID: "2", Data: map[string]interface{}{"name": "Bob"}},
		{Op: "set", Data: map[string]interface{}{"name": "Carol"}},
		{Op: "update", ID: "1", Data: map[string]interface{}{"age": 31}},
		{Op: "delete", ID: "2"},
	}}

	w := doJSON(t, router, "POST", "/collections/users/bulk", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBulk(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "users", resp.Collection)
	assert.Equal(t, 5, resp.Operations)
	require.Len(t, resp.Batches, 3)
	assert.Equal(t, 2, resp.Batches[0].Operations)
	assert.Equal(t, 2, resp.Batches[1].Operations)
	assert.Equal(t, 1, resp.Batches[2].Operations)
	assert.Empty(t, resp.FailedBatches)

	require.Len(t, resp.IDs, 5)
	assert.Equal(t, "1", resp.IDs[0])
	assert.Len(t, resp.IDs[2], 36, "generated id should be a uuid")

	doc, err := engine.GetById("users", "1")
	require.NoError(t, err)
	assert.EqualValues(t, 31, doc["age"])
	assert.Equal(t, "Alice", doc["name"])

	_, err = engine.GetById("users", "2")
	assert.Error(t, err)

	carol, err := engine.GetById("users", resp.IDs[2])
	require.NoError(t, err)
	assert.Equal(t, "Carol", carol["name"])
}

func TestHandler_HandleBulkWrite_MergeOptions(t *testing.T) {
	router, engine := newTestRouter(t, 10)

	seed := BulkWriteRequest{Operations: []BulkOperation{
		{Op: "set", ID: "1", Data: map[string]interface{}{"name": "Alice", "city": "Leeds"}},
		{Op: "set", ID: "2", Data: map[string]interface{}{"name": "Bob", "city": "York"}},
		{Op: "set", ID: "3", Data: map[string]interface{}{"name": "Dan", "city": "Hull"}},
	}}
	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/collections/users/bulk", seed).Code)

	req := BulkWriteRequest{Operations: []BulkOperation{
		{Op: "set", ID: "1", Data: map[string]interface{}{"age": 30}},
		{Op: "set", ID: "2", Data: map[string]interface{}{"age": 40}, Merge: true},
		{Op: "set", ID: "3", Data: map[string]interface{}{"name": "Daniel", "age": 50}, MergeFields: []string{"age"}},
	}}
	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/collections/users/bulk", req).Code)

	overwritten, err := engine.GetById("users", "1")
	require.NoError(t, err)
	assert.NotContains(t, overwritten, "name")

	merged, err := engine.GetById("users", "2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", merged["name"])
	assert.EqualValues(t, 40, merged["age"])

	fields, err := engine.GetById("users", "3")
	require.NoError(t, err)
	assert.Equal(t, "Dan", fields["name"])
	assert.EqualValues(t, 50, fields["age"])
}

func TestHandler_HandleBulkWrite_PartialFailure(t *testing.T) {
	router, engine := newTestRouter(t, 2)

	req := BulkWriteRequest{Operations: []BulkOperation{
		{Op: "set", ID: "a", Data: map[string]interface{}{"n": 1}},
		{Op: "set", ID: "b", Data: map[string]interface{}{"n": 2}},
		{Op: "update", ID: "missing", Data: map[string]interface{}{"n": 3}},
		{Op: "set", ID: "c", Data: map[string]interface{}{"n": 4}},
		{Op: "set", ID: "d", Data: map[string]interface{}{"n": 5}},
	}}

	w := doJSON(t, router, "POST", "/collections/items/bulk", req)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	resp := decodeBulk(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, []int{1}, resp.FailedBatches)
	require.Len(t, resp.Batches, 3)
	assert.Empty(t, resp.Batches[0].Error)
	assert.Contains(t, resp.Batches[1].Error, "document not found")
	assert.Empty(t, resp.Batches[2].Error)

	for _, id := range []string{"a", "b", "d"} {
		_, err := engine.GetById("items", id)
		assert.NoError(t, err, id)
	}
	_, err := engine.GetById("items", "c")
	assert.Error(t, err, "the failed batch must not be partially applied")
}

func TestHandler_HandleBulkWrite_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "malformed json", body: `{"operations": [`},
		{name: "no operations", body: BulkWriteRequest{}},
		{name: "unknown op", body: BulkWriteRequest{Operations: []BulkOperation{{Op: "upsert", ID: "1"}}}},
		{name: "update without id", body: BulkWriteRequest{Operations: []BulkOperation{{Op: "update"}}}},
		{name: "delete without id", body: BulkWriteRequest{Operations: []BulkOperation{{Op: "delete"}}}},
		{name: "conflicting merge", body: BulkWriteRequest{Operations: []BulkOperation{
			{Op: "set", ID: "1", Merge: true, MergeFields: []string{"a"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/collections/users/bulk", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
			assert.Equal(t, http.StatusBadRequest, errResp.Code)
		})
	}
}

func TestHandler_HandleBulkWrite_InvalidLimit(t *testing.T) {
	router, _ := newTestRouter(t, 10, batch.WithLimit(0))

	req := BulkWriteRequest{Operations: []BulkOperation{{Op: "delete", ID: "1"}}}
	w := doJSON(t, router, "POST", "/collections/users/bulk", req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_HandleGetById(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	seed := BulkWriteRequest{Operations: []BulkOperation{
		{Op: "set", ID: "1", Data: map[string]interface{}{"name": "Alice"}},
	}}
	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/collections/users/bulk", seed).Code)

	w := doJSON(t, router, "GET", "/collections/users/documents/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Alice", doc["name"])
	assert.Equal(t, "1", doc["_id"])

	w = doJSON(t, router, "GET", "/collections/users/documents/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, "GET", "/collections/nobody/documents/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_HandleFindAll(t *testing.T) {
	router, _ := newTestRouter(t, 3)

	seed := BulkWriteRequest{}
	for i, role := range []string{"admin", "user", "user", "admin", "user"} {
		seed.Operations = append(seed.Operations, BulkOperation{
			Op:   "set",
			ID:   string(rune('a' + i)),
			Data: map[string]interface{}{"role": role, "rank": i},
		})
	}
	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/collections/users/bulk", seed).Code)

	tests := []struct {
		name     string
		query    string
		wantIDs  []string
		wantNext bool
		status   int
	}{
		{name: "all", query: "", wantIDs: []string{"a", "b", "c", "d", "e"}, status: http.StatusOK},
		{name: "string filter", query: "?role=admin", wantIDs: []string{"a", "d"}, status: http.StatusOK},
		{name: "numeric filter", query: "?rank=2", wantIDs: []string{"c"}, status: http.StatusOK},
		{name: "paged", query: "?limit=2&offset=1", wantIDs: []string{"b", "c"}, wantNext: true, status: http.StatusOK},
		{name: "bad limit", query: "?limit=abc", status: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "GET", "/collections/users/find"+tt.query, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			var page struct {
				Documents []map[string]interface{} `json:"documents"`
				HasNext   bool                     `json:"has_next"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))

			ids := make([]string, len(page.Documents))
			for i, doc := range page.Documents {
				ids[i] = doc["_id"].(string)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantNext, page.HasNext)
		})
	}
}

func TestHandler_HandleHealth(t *testing.T) {
	router, _ := newTestRouter(t, 42)

	w := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 42, resp.MaxBatchSize)
}

func TestHandler_HandleBulkWrite_TotalFailure(t *testing.T) {
	tests := []struct {
		name     string
		maxBatch int
		ops      []BulkOperation
		failed   []int
	}{
		{
			name:     "single batch",
			maxBatch: 10,
			ops:      []BulkOperation{{Op: "update", ID: "missing", Data: map[string]interface{}{"n": 1}}},
			failed:   []int{0},
		},
		{
			name:     "every batch",
			maxBatch: 1,
			ops: []BulkOperation{
				{Op: "update", ID: "missing-1", Data: map[string]interface{}{"n": 1}},
				{Op: "set", ID: "x", Data: map[string]interface{}{"a": 1}, MergeFields: []string{"zzz"}},
			},
			failed: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, engine := newTestRouter(t, tt.maxBatch)

			w := doJSON(t, router, "POST", "/collections/items/bulk", BulkWriteRequest{Operations: tt.ops})
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

			resp := decodeBulk(t, w)
			assert.False(t, resp.Success)
			assert.ElementsMatch(t, tt.failed, resp.FailedBatches)

			_, err := engine.GetById("items", "x")
			assert.Error(t, err)
		})
	}
}
