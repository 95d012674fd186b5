package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/catalog"
	"github.com/awsl-dev/vidstream/internal/upload"
)

// uploadStore records puts and hands out sequential ids.
type uploadStore struct {
	names []string
	sizes []int
}

func (u *uploadStore) Put(_ context.Context, name string, data []byte) (string, error) {
	u.names = append(u.names, name)
	u.sizes = append(u.sizes, len(data))
	return fmt.Sprintf("f%d", len(u.names)-1), nil
}

func (u *uploadStore) Get(_ context.Context, fileID string) ([]byte, error) {
	return nil, errors.New("not used")
}

func newUploadRouter(t *testing.T, store *uploadStore, chunkSize int) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.NewWithDB(db, zap.NewNop())
	pipeline := upload.New(store, cat, chunkSize, chunkSize/2, zap.NewNop())
	h := NewUploadHandler(pipeline, cat, nil, zap.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/admin-api/episodes/{episode_id}/upload", h.ServeUpload).Methods("POST")
	router.HandleFunc("/admin-api/episodes/{episode_id}/finalize", h.ServeFinalize).Methods("POST")
	return router, mock
}

func multipartBody(t *testing.T, fieldName, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func expectEpisode(mock sqlmock.Sqlmock, id int64, title string, number int) {
	mock.ExpectQuery(`SELECT id, title, episode_number, created_at FROM episodes`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "episode_number", "created_at"}).
			AddRow(id, title, number, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM episodes WHERE id = ?`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
}

func TestUploadSplitsIntoChunks(t *testing.T) {
	store := &uploadStore{}
	router, mock := newUploadRouter(t, store, 10)

	expectEpisode(mock, 42, "My Show: Part 1", 2)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM video_chunks`)).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO video_chunks`)).WithArgs(int64(42), 0, "f0", int64(10)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO video_chunks`)).WithArgs(int64(42), 1, "f1", int64(10)).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO video_chunks`)).WithArgs(int64(42), 2, "f2", int64(5)).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	body, contentType := multipartBody(t, "file", "movie.mp4", make([]byte, 25))
	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/42/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"chunk_count":3`)
	// The colon in the title is sanitized out of backend filenames.
	assert.Equal(t, []string{
		"My Show_ Part 1_EP2.part0",
		"My Show_ Part 1_EP2.part1",
		"My Show_ Part 1_EP2.part2",
	}, store.names)
	assert.Equal(t, []int{10, 10, 5}, store.sizes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadUnknownEpisode(t *testing.T) {
	router, mock := newUploadRouter(t, &uploadStore{}, 10)

	mock.ExpectQuery(`SELECT id, title, episode_number, created_at FROM episodes`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "episode_number", "created_at"}))

	body, contentType := multipartBody(t, "file", "movie.mp4", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/7/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMissingFilePart(t *testing.T) {
	router, mock := newUploadRouter(t, &uploadStore{}, 10)

	expectEpisode(mock, 42, "Show", 1)

	body, contentType := multipartBody(t, "cover", "cover.jpg", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/42/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinalizeHandler(t *testing.T) {
	router, mock := newUploadRouter(t, &uploadStore{}, 10)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM episodes WHERE id = ?`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM video_chunks`)).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO video_chunks`)).WithArgs(int64(42), 0, "tg-1", int64(10485760)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO video_chunks`)).WithArgs(int64(42), 1, "tg-2", int64(42)).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	payload := `{"chunks":[
		{"chunk_index":0,"file_id":"tg-1","chunk_size":10485760},
		{"chunk_index":1,"file_id":"tg-2","chunk_size":42}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/42/finalize", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"chunk_count":2`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRejectsNonContiguousList(t *testing.T) {
	router, _ := newUploadRouter(t, &uploadStore{}, 10)

	payload := `{"chunks":[
		{"chunk_index":0,"file_id":"tg-1","chunk_size":1},
		{"chunk_index":2,"file_id":"tg-2","chunk_size":1}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/42/finalize", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinalizeMalformedBody(t *testing.T) {
	router, _ := newUploadRouter(t, &uploadStore{}, 10)

	req := httptest.NewRequest(http.MethodPost, "/admin-api/episodes/42/finalize", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
