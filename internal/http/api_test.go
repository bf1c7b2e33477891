package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"magnet-playlets/internal/cast"
	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/downloader"
	"magnet-playlets/internal/engine"
	"magnet-playlets/internal/events"
	"magnet-playlets/internal/repository/sqlite"
	"magnet-playlets/internal/service"
	"magnet-playlets/internal/storage"
)

type testEnv struct {
	router   *gin.Engine
	engine   *fakeEngine
	torrents *fakeTorrents
	storage  *fakeStorage
	devices  *cast.Registry
	playlets service.PlayletService
}

type envOption func(*Options)

func withAuth(auth service.AuthService) envOption {
	return func(o *Options) { o.Auth = auth }
}

func withoutStorage() envOption {
	return func(o *Options) { o.Storage = nil }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := sqlite.NewPlayletRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		engine:   newFakeEngine(),
		torrents: newFakeTorrents(),
		storage:  &fakeStorage{},
		devices:  cast.NewRegistry(nil),
		playlets: service.NewPlayletService(repo),
	}
	o := Options{
		Engine:   env.engine,
		Playlets: env.playlets,
		Torrents: env.torrents,
		Storage:  env.storage,
		Devices:  env.devices,
		Logger:   logger,
	}
	for _, fn := range opts {
		fn(&o)
	}

	env.router = gin.New()
	NewHandler(o).RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, _ := json.Marshal(b)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func validPlaylet(name string) map[string]any {
	return map[string]any{
		"name":            name,
		"enabled":         true,
		"trigger":         map[string]any{"kind": "download_complete"},
		"conditions":      []any{map[string]any{"field": "name", "operator": "contains", "value": "1080p"}},
		"condition_logic": "and",
		"actions":         []any{map[string]any{"type": "notify"}},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["auth_required"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, "/api/tasks", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPlaylets_CRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/playlets", validPlaylet("Movies"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Playlet](t, rec)
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Actions, 1)
	assert.NotEmpty(t, created.Actions[0].ID)

	rec = env.do(http.MethodGet, "/api/playlets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Playlet](t, rec), 1)

	update := validPlaylet("Films")
	rec = env.do(http.MethodPut, "/api/playlets/"+created.ID, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Films", decode[domain.Playlet](t, rec).Name)

	rec = env.do(http.MethodPut, "/api/playlets/"+created.ID+"/enabled", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[domain.Playlet](t, rec).Enabled)

	rec = env.do(http.MethodPost, "/api/playlets/"+created.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dup := decode[domain.Playlet](t, rec)
	assert.Equal(t, "Films (copy)", dup.Name)
	assert.NotEqual(t, created.ID, dup.ID)

	rec = env.do(http.MethodDelete, "/api/playlets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/playlets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaylets_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	bad := validPlaylet("Bad")
	bad["trigger"] = map[string]any{"kind": "sunrise"}
	rec := env.do(http.MethodPost, "/api/playlets", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown trigger")

	rec = env.do(http.MethodPost, "/api/playlets", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/playlets/missing/enabled", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/playlets/missing/enabled", map[string]any{"enabled": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTasks_CreateUsesTorrentName(t *testing.T) {
	env := newTestEnv(t)
	env.torrents.summaries = []domain.TorrentSummary{{ID: "abc", Name: "Movie.2024.1080p"}}
	env.engine.playlets["p1"] = true

	rec := env.do(http.MethodPost, "/api/tasks", map[string]any{"torrent_id": "abc", "playlet_id": "p1"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[TaskResponse](t, rec)
	assert.Equal(t, "Movie.2024.1080p", task.TorrentName)
	require.NotNil(t, task.PlayletID)
	assert.Equal(t, "p1", *task.PlayletID)
	assert.Equal(t, domain.TaskStatusWaiting, task.Status)

	rec = env.do(http.MethodGet, "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, task.ID, decode[TaskResponse](t, rec).ID)
}

func TestTasks_CreateUnassigned(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/tasks", map[string]any{"torrent_id": "abc", "torrent_name": "Show", "playlet_id": " "})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[TaskResponse](t, rec)
	assert.Nil(t, task.PlayletID)
	assert.Equal(t, "Show", task.TorrentName)
}

func TestTasks_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.engine.put(domain.Task{ID: "running", Status: domain.TaskStatusExecuting})
	env.engine.put(domain.Task{ID: "done", Status: domain.TaskStatusCompleted})
	env.engine.playlets["p1"] = true

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown task", http.MethodGet, "/api/tasks/nope", nil, http.StatusNotFound},
		{"delete unknown task", http.MethodDelete, "/api/tasks/nope", nil, http.StatusNotFound},
		{"retry while executing", http.MethodPost, "/api/tasks/running/retry", nil, http.StatusConflict},
		{"assign finished task", http.MethodPut, "/api/tasks/done/assign", map[string]any{"playlet_id": "p1"}, http.StatusConflict},
		{"unknown playlet", http.MethodPost, "/api/tasks", map[string]any{"torrent_id": "abc", "playlet_id": "ghost"}, http.StatusNotFound},
		{"missing torrent id", http.MethodPost, "/api/tasks", map[string]any{"torrent_name": "x"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTasks_ResultsInResponse(t *testing.T) {
	env := newTestEnv(t)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reason := "no cast device available"
	env.engine.put(domain.Task{
		ID:        "t1",
		Status:    domain.TaskStatusCompleted,
		CreatedAt: started,
		Results: []domain.ActionResult{
			{ActionID: "a1", ActionType: domain.ActionCast, Status: domain.ActionStatusSkipped, StartedAt: &started, CompletedAt: &started, SkipReason: &reason},
			{ActionID: "a2", ActionType: domain.ActionNotify, Status: domain.ActionStatusDone},
		},
	})

	rec := env.do(http.MethodGet, "/api/tasks", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]TaskResponse](t, rec)
	require.Len(t, tasks, 1)
	require.Len(t, tasks[0].Results, 2)
	assert.Equal(t, domain.ActionStatusSkipped, tasks[0].Results[0].Status)
	require.NotNil(t, tasks[0].Results[0].SkipReason)
	assert.Equal(t, reason, *tasks[0].Results[0].SkipReason)
	assert.Equal(t, "2024-05-01T12:00:00Z", *tasks[0].Results[0].StartedAt)
	assert.Nil(t, tasks[0].Results[1].StartedAt)
}

func TestTasks_RetryAssignAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.engine.playlets["p2"] = true
	env.engine.put(domain.Task{ID: "failed", Status: domain.TaskStatusFailed})
	env.engine.put(domain.Task{ID: "idle", Status: domain.TaskStatusWaiting})
	env.engine.put(domain.Task{ID: "old", Status: domain.TaskStatusCompleted})

	rec := env.do(http.MethodPost, "/api/tasks/failed/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TaskStatusWaiting, decode[TaskResponse](t, rec).Status)

	rec = env.do(http.MethodPut, "/api/tasks/idle/assign", map[string]any{"playlet_id": "p2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "p2", *decode[TaskResponse](t, rec).PlayletID)

	rec = env.do(http.MethodPut, "/api/tasks/idle/assign", map[string]any{"playlet_id": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[TaskResponse](t, rec).PlayletID)

	rec = env.do(http.MethodDelete, "/api/tasks/completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["removed"])

	_, err := env.engine.Task("old")
	assert.ErrorIs(t, err, engine.ErrTaskNotFound)
	_, err = env.engine.Task("failed")
	assert.NoError(t, err)
}

func TestAuth_GuardsAPI(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := service.NewAuthService(string(hash), "secret", time.Hour)
	require.NoError(t, err)
	env := newTestEnv(t, withAuth(auth))

	rec := env.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["auth_required"])

	rec = env.do(http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", map[string]any{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", map[string]any{"password": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode[map[string]any](t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = env.do(http.MethodGet, "/api/tasks", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/tasks?access_token="+token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/tasks", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_LoginWhenDisabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/login", map[string]any{"password": "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}

func TestSettings_Update(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/settings", map[string]any{
		"default_cast_device":  "tv",
		"max_concurrent_tasks": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[domain.Settings](t, rec)
	assert.Equal(t, 3, got.MaxConcurrentTasks)
	assert.Equal(t, "tv", got.DefaultCastDevice)
	assert.Len(t, env.engine.applied, 1)

	rec = env.do(http.MethodPut, "/api/settings", map[string]any{"max_concurrent_tasks": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.engine.applied, 1)

	rec = env.do(http.MethodGet, "/api/settings", nil)
	assert.Equal(t, 3, decode[domain.Settings](t, rec).MaxConcurrentTasks)
}

func TestDevices_Replace(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/devices", []map[string]any{
		{"id": "b", "name": "Bedroom", "control_url": "http://b", "connected": true},
		{"id": "a", "name": "Attic", "control_url": "http://a"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/devices", nil)
	devices := decode[[]domain.Device](t, rec)
	require.Len(t, devices, 2)
	assert.Equal(t, "Attic", devices[0].Name)

	rec = env.do(http.MethodPut, "/api/devices", []map[string]any{{"name": "no id"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTorrents_AddAndList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/torrents", map[string]any{"magnet": "http://not-a-magnet"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/torrents", map[string]any{"magnet": "magnet:?xt=urn:btih:abc"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"magnet:?xt=urn:btih:abc"}, env.torrents.added)

	env.torrents.summaries = []domain.TorrentSummary{{ID: "abc", Name: "Show", TotalBytes: 200, CompletedBytes: 50, FileCount: 2, HasInfo: true}}
	rec = env.do(http.MethodGet, "/api/torrents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]TorrentResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 25, list[0].Progress)
}

func TestTorrents_Files(t *testing.T) {
	env := newTestEnv(t)
	env.torrents.files["abc"] = sampleFiles()

	rec := env.do(http.MethodGet, "/api/torrents/abc/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	files := decode[[]TorrentFileResponse](t, rec)
	require.Len(t, files, 3)
	assert.Equal(t, "http://example.com/torrent/abc/stream/0", files[0].StreamURL)
	assert.Empty(t, files[1].StreamURL)

	rec = env.do(http.MethodGet, "/api/torrents/pending/files", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/torrents/ghost/files", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageObjects(t *testing.T) {
	env := newTestEnv(t)
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	env.storage.objects = []storage.ObjectInfo{{Key: "library/movie.mkv", Size: 42, LastModified: &modified}}

	rec := env.do(http.MethodGet, "/api/storage/objects", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/storage/objects?location=s3://media/library", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	objects := decode[[]StorageObjectResponse](t, rec)
	require.Len(t, objects, 1)
	assert.Equal(t, "2024-01-02T03:04:05Z", *objects[0].LastModified)
	assert.Equal(t, "media/library", env.storage.listed)

	rec = env.do(http.MethodDelete, "/api/storage/objects?location=s3://media", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/storage/objects?location=s3://media/library/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"media/library"}, env.storage.deleted)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["objects"])
}

func TestStorageUploads(t *testing.T) {
	env := newTestEnv(t)
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	env.storage.objects = []storage.ObjectInfo{
		{Key: "library/Show/ep1.mkv", Upload: "Show", Size: 40, LastModified: &modified},
		{Key: "library/Show/ep2.mkv", Upload: "Show", Size: 2},
		{Key: "library/Film/film.mp4", Upload: "Film", Size: 7},
	}

	rec := env.do(http.MethodGet, "/api/storage/uploads?location=s3://media/library", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploads := decode[[]UploadSummaryResponse](t, rec)
	require.Len(t, uploads, 2)
	assert.Equal(t, UploadSummaryResponse{Name: "Film", Location: "s3://media/library/Film", Objects: 1, Size: 7}, uploads[0])
	assert.Equal(t, "s3://media/library/Show", uploads[1].Location)
	assert.Equal(t, 2, uploads[1].Objects)
	assert.Equal(t, int64(42), uploads[1].Size)
	assert.Equal(t, "2024-01-02T03:04:05Z", *uploads[1].LastModified)
}

func TestStorageObjects_NotConfigured(t *testing.T) {
	env := newTestEnv(t, withoutStorage())

	rec := env.do(http.MethodGet, "/api/storage/objects?location=s3://media/x", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPlaylist(t *testing.T) {
	env := newTestEnv(t)
	env.torrents.files["abc"] = sampleFiles()

	rec := env.do(http.MethodGet, "/torrent/abc/playlist.m3u8", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playlistContentType, rec.Header().Get("Content-Type"))
	want := "#EXTM3U\n" +
		"#EXTINF:-1,e01.mkv\nhttp://example.com/torrent/abc/stream/0\n" +
		"#EXTINF:-1,e02.mp4\nhttp://example.com/torrent/abc/stream/2\n"
	assert.Equal(t, want, rec.Body.String())

	env.engine.settings.MediaBaseURL = "http://media.local:8080/"
	rec = env.do(http.MethodGet, "/torrent/abc/playlist.m3u8", nil)
	assert.Contains(t, rec.Body.String(), "http://media.local:8080/torrent/abc/stream/0\n")
}

func TestPlaylist_NoPlayableFiles(t *testing.T) {
	env := newTestEnv(t)
	env.torrents.files["docs"] = []domain.FileInfo{{Index: 0, Name: "readme.txt", Path: "readme.txt"}}

	rec := env.do(http.MethodGet, "/torrent/docs/playlist.m3u8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/torrent/ghost/playlist.m3u8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStream_ServesRanges(t *testing.T) {
	env := newTestEnv(t)
	env.torrents.files["abc"] = sampleFiles()
	env.torrents.content["abc/0"] = []byte("0123456789")

	rec := env.do(http.MethodGet, "/torrent/abc/stream/0", nil, "Range", "bytes=2-5")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "video/x-matroska", rec.Header().Get("Content-Type"))

	rec = env.do(http.MethodGet, "/torrent/abc/stream/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())

	rec = env.do(http.MethodGet, "/torrent/abc/stream/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/torrent/abc/stream/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_StreamsTaskChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(rec, req)
		close(done)
	}()

	var fn events.Subscriber
	select {
	case fn = <-env.engine.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}
	fn(events.Event{Type: events.TaskCreated, Timestamp: time.Now(), Task: domain.Task{ID: "t1", Status: domain.TaskStatusWaiting}})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), "event:task_created")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.String(), `"id":"t1"`)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the client went away")
	}
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, env.engine.unsubscribed())
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_hits_total", Help: "hits"})
	reg.MustRegister(counter)
	counter.Inc()
	env := newTestEnv(t, func(o *Options) {
		o.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	})

	rec := env.do(http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_hits_total 1")
}

func sampleFiles() []domain.FileInfo {
	return []domain.FileInfo{
		{Index: 0, Name: "e01.mkv", Path: "Show/e01.mkv", Length: 10, IsPlayable: true, MimeType: "video/x-matroska"},
		{Index: 1, Name: "e01.srt", Path: "Show/e01.srt", Length: 1, MimeType: "application/x-subrip"},
		{Index: 2, Name: "e02.mp4", Path: "Show/e02.mp4", Length: 10, IsPlayable: true, MimeType: "video/mp4"},
	}
}

// -- Fakes ---

type fakeEngine struct {
	mu         sync.Mutex
	tasks      map[string]domain.Task
	order      []string
	playlets   map[string]bool
	settings   domain.Settings
	applied    []domain.Settings
	subscribed chan events.Subscriber
	unsubs     int
	seq        int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		tasks:      make(map[string]domain.Task),
		playlets:   make(map[string]bool),
		subscribed: make(chan events.Subscriber, 1),
	}
}

func (f *fakeEngine) put(task domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		f.order = append(f.order, task.ID)
	}
	f.tasks[task.ID] = task
}

func (f *fakeEngine) CreateTask(_ context.Context, torrentID, torrentName string, playletID *string) (domain.Task, error) {
	f.mu.Lock()
	if playletID != nil && !f.playlets[*playletID] {
		f.mu.Unlock()
		return domain.Task{}, engine.ErrPlayletNotFound
	}
	f.seq++
	task := domain.Task{
		ID:          "task-" + strconv.Itoa(f.seq),
		TorrentID:   torrentID,
		TorrentName: torrentName,
		PlayletID:   playletID,
		Status:      domain.TaskStatusWaiting,
		CreatedAt:   time.Now().UTC(),
	}
	f.mu.Unlock()
	f.put(task)
	return task, nil
}

func (f *fakeEngine) Retry(id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, engine.ErrTaskNotFound
	}
	if task.Status == domain.TaskStatusExecuting {
		return domain.Task{}, engine.ErrTaskExecuting
	}
	task.Status = domain.TaskStatusWaiting
	f.tasks[id] = task
	return task, nil
}

func (f *fakeEngine) Reassign(_ context.Context, id string, playletID *string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if playletID != nil && !f.playlets[*playletID] {
		return domain.Task{}, engine.ErrPlayletNotFound
	}
	task, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, engine.ErrTaskNotFound
	}
	if task.Status != domain.TaskStatusWaiting {
		return domain.Task{}, engine.ErrTaskNotWaiting
	}
	task.PlayletID = playletID
	f.tasks[id] = task
	return task, nil
}

func (f *fakeEngine) Remove(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return engine.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeEngine) ClearCompleted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, task := range f.tasks {
		if task.Status == domain.TaskStatusCompleted {
			delete(f.tasks, id)
			n++
		}
	}
	return n
}

func (f *fakeEngine) Tasks() []domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.tasks))
	for _, id := range f.order {
		if task, ok := f.tasks[id]; ok {
			out = append(out, task)
		}
	}
	return out
}

func (f *fakeEngine) Task(id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, engine.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeEngine) ApplySettings(s domain.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
	f.applied = append(f.applied, s)
}

func (f *fakeEngine) Settings() domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeEngine) Subscribe(fn events.Subscriber, _ ...events.Type) func() {
	f.subscribed <- fn
	return func() {
		f.mu.Lock()
		f.unsubs++
		f.mu.Unlock()
	}
}

func (f *fakeEngine) unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubs
}

type fakeTorrents struct {
	summaries []domain.TorrentSummary
	files     map[string][]domain.FileInfo
	content   map[string][]byte
	added     []string
}

func newFakeTorrents() *fakeTorrents {
	return &fakeTorrents{
		files:   make(map[string][]domain.FileInfo),
		content: make(map[string][]byte),
	}
}

func (f *fakeTorrents) AddMagnet(_ context.Context, uri string) (domain.TorrentSummary, error) {
	f.added = append(f.added, uri)
	return domain.TorrentSummary{ID: "abc", Name: "abc"}, nil
}

func (f *fakeTorrents) List() []domain.TorrentSummary {
	return f.summaries
}

func (f *fakeTorrents) ListFiles(_ context.Context, torrentID string) ([]domain.FileInfo, error) {
	if torrentID == "pending" {
		return nil, downloader.ErrNoMetadata
	}
	files, ok := f.files[torrentID]
	if !ok {
		return nil, downloader.ErrTorrentNotFound
	}
	return files, nil
}

func (f *fakeTorrents) OpenFile(torrentID string, index int) (io.ReadSeekCloser, domain.FileInfo, error) {
	files, ok := f.files[torrentID]
	if !ok {
		return nil, domain.FileInfo{}, downloader.ErrTorrentNotFound
	}
	if index >= len(files) {
		return nil, domain.FileInfo{}, downloader.ErrFileNotFound
	}
	data := f.content[torrentID+"/"+strconv.Itoa(index)]
	return nopSeekCloser{bytes.NewReader(data)}, files[index], nil
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }

type fakeStorage struct {
	objects []storage.ObjectInfo
	listed  string
	deleted []string
}

func (f *fakeStorage) UploadDirectory(context.Context, string, storage.UploadOptions) (string, error) {
	return "", nil
}

func (f *fakeStorage) ListObjects(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	f.listed = bucket + "/" + prefix
	return f.objects, nil
}

func (f *fakeStorage) DeletePrefix(_ context.Context, bucket, prefix string) (int, error) {
	f.deleted = append(f.deleted, bucket+"/"+prefix)
	return len(f.objects), nil
}

// streamRecorder is a goroutine-safe ResponseWriter for long-lived
// responses.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	code   int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == 0 {
		r.code = code
	}
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}
