package blob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(srv.URL, "secret-token", "chat-7", zap.NewNop())
}

func TestGatewayPut(t *testing.T) {
	var gotToken, gotMediaType, gotChatID, gotName string
	var gotBody []byte

	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/upload", r.URL.Path)
		gotToken = r.Header.Get("X-Api-Token")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMediaType = r.FormValue("media_type")
		gotChatID = r.FormValue("chat_id")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotName = header.Filename
		gotBody, err = io.ReadAll(file)
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"files":   []map[string]string{{"file_id": "tg-abc123"}},
		})
	}))

	fileID, err := g.Put(context.Background(), "Show_EP1.part0", []byte("chunk payload"))
	require.NoError(t, err)
	assert.Equal(t, "tg-abc123", fileID)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "document", gotMediaType)
	assert.Equal(t, "chat-7", gotChatID)
	assert.Equal(t, "Show_EP1.part0", gotName)
	assert.Equal(t, []byte("chunk payload"), gotBody)
}

func TestGatewayPutRejected(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := g.Put(context.Background(), "x.part0", []byte("data"))
	require.Error(t, err)
	var ue *apperr.UploadError
	assert.ErrorAs(t, err, &ue)
}

func TestGatewayPutNoFiles(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))

	_, err := g.Put(context.Background(), "x.part0", []byte("data"))
	var ue *apperr.UploadError
	assert.ErrorAs(t, err, &ue)
}

func TestGatewayGet(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/file/tg-abc123", r.URL.Path)
		w.Write([]byte("chunk payload"))
	}))

	data, err := g.Get(context.Background(), "tg-abc123")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk payload"), data)
}

func TestGatewayGetUnknownID(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := g.Get(context.Background(), "missing")
	require.Error(t, err)
	var re *apperr.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.NotFound)
	assert.Equal(t, "missing", re.FileID)
}

func TestGatewayGetBackendFailure(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := g.Get(context.Background(), "tg-abc123")
	require.Error(t, err)
	var re *apperr.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.NotFound)
}
