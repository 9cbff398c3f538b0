package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"interview-stt-go/internal/logger"
	"interview-stt-go/internal/metrics"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

type fixture struct {
	router http.Handler
	store  store.Store
	queue  *queue.Memory
	user   uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewWithWriter(io.Discard, logrus.InfoLevel)
	st, db, err := store.Open(filepath.Join(t.TempDir(), "api.db"), log.Entry)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	q := queue.NewMemory(8)
	return &fixture{router: NewServer(st, q, log).Router(), store: st, queue: q, user: uuid.New()}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userHeader, f.user.String())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T) *types.Interview {
	t.Helper()
	iv := &types.Interview{CreatorID: f.user, Name: "seed", AudioLocation: "/data/a.mp3"}
	require.NoError(t, f.store.CreateInterview(context.Background(), iv))
	return iv
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.queue.Enqueue(context.Background(), queue.NewTask(f.user, uuid.New(), "")))

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok","queue":{"waiting":1,"inflight":0}}`, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("waiting")))

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequiresUser(t *testing.T) {
	f := setup(t)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/interviews", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateGetAndList(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/v1/interviews", gin.H{"name": "Focus", "audio_location": "/data/f.mp3"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created types.Interview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, types.StatusUploaded, created.Status)

	d, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, created.ID, d.Task.InterviewID)
	assert.Equal(t, "/data/f.mp3", d.Task.AudioLocation)

	w = f.do(t, http.MethodGet, "/v1/interviews/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/interviews/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/v1/interviews", nil)
	var list []types.Interview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = f.do(t, http.MethodPost, "/v1/interviews", gin.H{"name": "no audio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRollsBackWhenQueueIsDown(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.queue.Close())

	w := f.do(t, http.MethodPost, "/v1/interviews", gin.H{"name": "Focus", "audio_location": "/data/f.mp3"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	list, err := f.store.ListInterviews(context.Background(), f.user)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteInterview(t *testing.T) {
	f := setup(t)
	iv := f.seed(t)
	path := "/v1/interviews/" + iv.ID.String()

	w := f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	got, err := f.store.GetInterview(context.Background(), f.user, iv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	w = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchMergesSpeakers(t *testing.T) {
	f := setup(t)
	iv := f.seed(t)
	path := "/v1/interviews/" + iv.ID.String()

	w := f.do(t, http.MethodPatch, path, gin.H{"speakers": gin.H{"SPEAKER_0": "Alice"}})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPatch, path, gin.H{"name": "Renamed", "speakers": gin.H{"SPEAKER_1": "Bob"}})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.store.GetInterview(context.Background(), f.user, iv.ID)
	require.NoError(t, err)
	names, err := got.SpeakerNames()
	require.NoError(t, err)
	assert.Equal(t, types.Speakers{"SPEAKER_0": "Alice", "SPEAKER_1": "Bob"}, names)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, types.StatusUploaded, got.Status)

	w = f.do(t, http.MethodPatch, path, gin.H{"name": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessEnqueues(t *testing.T) {
	f := setup(t)
	iv := f.seed(t)

	w := f.do(t, http.MethodPost, "/v1/interviews/"+iv.ID.String()+"/process", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, 1, f.queue.Len())

	d, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, iv.ID, d.Task.InterviewID)
	assert.Equal(t, "/data/a.mp3", d.Task.AudioLocation)
}

func TestProcessRejectsTerminal(t *testing.T) {
	f := setup(t)
	iv := f.seed(t)
	ctx := context.Background()
	for _, st := range []types.InterviewStatus{types.StatusProcessing, types.StatusTranscripted} {
		st := st
		_, err := f.store.UpdateInterview(ctx, f.user, iv.ID, types.InterviewUpdate{Status: &st})
		require.NoError(t, err)
	}

	w := f.do(t, http.MethodPost, "/v1/interviews/"+iv.ID.String()+"/process", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.queue.Len())
}

func TestExport(t *testing.T) {
	f := setup(t)
	iv := f.seed(t)
	path := "/v1/interviews/" + iv.ID.String() + "/export.xlsx"

	w := f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	ctx := context.Background()
	processing, done := types.StatusProcessing, types.StatusTranscripted
	_, err := f.store.UpdateInterview(ctx, f.user, iv.ID, types.InterviewUpdate{Status: &processing})
	require.NoError(t, err)
	_, err = f.store.UpdateInterview(ctx, f.user, iv.ID, types.InterviewUpdate{
		Status: &done,
		Transcript: &transcript.Transcript{
			Segments: []transcript.Segment{{ID: 0, End: 1, Words: []transcript.Word{{Word: "hello", End: 1, Probability: 1}}}},
			Speakers: transcript.SpeakerSet{},
		},
	})
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	book, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Transcript")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
