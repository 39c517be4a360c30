package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/adapter/http/ratelimit"
	"github.com/bnema/reelsub/internal/adapter/storage/localfs"
	"github.com/bnema/reelsub/internal/adapter/storage/memory"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/events"
	"github.com/bnema/reelsub/internal/fonts"
	"github.com/bnema/reelsub/internal/service"
)

// createOnly stands in for the pipeline: it creates the job without running it.
type createOnly struct {
	jobs   *service.JobService
	inputs []domain.JobInput
}

func (c *createOnly) Submit(input domain.JobInput) (*domain.Job, error) {
	c.inputs = append(c.inputs, input)
	return c.jobs.Create(input)
}

type testServer struct {
	server    *Server
	jobs      *service.JobService
	submitter *createOnly
	objects   *localfs.Store
	incoming  string
}

type serverConfig struct {
	apiKeys  []string
	limiter  *ratelimit.SubmitLimiter
	maxBytes int64
}

func newTestServer(t *testing.T, cfg serverConfig) *testServer {
	t.Helper()
	jobs := service.NewJobService(memory.NewStore(), service.JobServiceOptions{Timeout: time.Minute})
	t.Cleanup(jobs.Shutdown)

	dir := t.TempDir()
	objects, err := localfs.NewStore(dir, "http://localhost:7890")
	require.NoError(t, err)

	if cfg.maxBytes == 0 {
		cfg.maxBytes = 1 << 20
	}
	submitter := &createOnly{jobs: jobs}
	streamer := events.NewStreamer(jobs, jobs.Bus(), events.StreamOptions{
		PollInterval: 20 * time.Millisecond,
		Heartbeat:    time.Second,
		IdleTimeout:  5 * time.Second,
	})
	incoming := filepath.Join(dir, "incoming")

	srv := NewServer(Deps{
		Jobs:      jobs,
		Submitter: submitter,
		Streamer:  streamer,
		Selector:  fonts.NewSelector(fonts.DefaultRegistry()),
		Objects:   objects,
		Limiter:   cfg.limiter,
	}, Options{
		IncomingDir:    incoming,
		MaxUploadBytes: cfg.maxBytes,
		APIKeys:        cfg.apiKeys,
		Version:        "test",
	})
	return &testServer{server: srv, jobs: jobs, submitter: submitter, objects: objects, incoming: incoming}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func mp4Bytes(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0x00, 0x00, 0x00, 0x18})
	copy(b[4:], "ftypisom")
	return b
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, serverConfig{apiKeys: []string{"secret"}})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestServer_UnknownRouteIsJSON(t *testing.T) {
	ts := newTestServer(t, serverConfig{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestServer_Languages(t *testing.T) {
	ts := newTestServer(t, serverConfig{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/languages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Languages []languageInfo `json:"languages"`
	}](t, rec)
	var codes []string
	for _, l := range body.Languages {
		codes = append(codes, l.Code)
		if l.Code == "ar" {
			assert.Equal(t, domain.DirectionRTL, l.Direction)
		}
	}
	assert.Contains(t, codes, "vi")
	assert.Contains(t, codes, "ar")
}

func TestServer_SubmitJSON(t *testing.T) {
	ts := newTestServer(t, serverConfig{})

	req := jsonRequest(http.MethodPost, "/jobs", submitRequest{
		SourceURL: "https://cdn.example.com/clip.mp4",
		Language:  "vi",
		Quality:   "HIGH",
	})
	req.RemoteAddr = "198.51.100.4:4000"
	rec := ts.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[domain.Job](t, rec)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, "/jobs/"+job.ID, rec.Header().Get("Location"))
	assert.Equal(t, domain.QualityHigh, job.Input.Quality)

	require.Len(t, ts.submitter.inputs, 1)
	assert.Equal(t, "198.51.100.4", ts.submitter.inputs[0].ClientID)
	assert.Equal(t, "https://cdn.example.com/clip.mp4", ts.submitter.inputs[0].SourceRef)
}

func TestServer_SubmitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{"unsupported language", submitRequest{SourceURL: "https://x/clip.mp4", Language: "tlh"}, http.StatusBadRequest},
		{"not a url", submitRequest{SourceURL: "/etc/passwd", Language: "vi"}, http.StatusBadRequest},
		{"bad quality", submitRequest{SourceURL: "https://x/clip.mp4", Language: "vi", Quality: "ultra"}, http.StatusBadRequest},
		{"unknown field", map[string]string{"sourceUrl": "https://x/clip.mp4", "language": "vi", "extra": "1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, serverConfig{})
			rec := ts.do(jsonRequest(http.MethodPost, "/jobs", tt.body))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, domain.ErrorKindValidation, decode[errorResponse](t, rec).Kind)
			assert.Empty(t, ts.submitter.inputs)
		})
	}
}

func TestServer_SubmitUpload(t *testing.T) {
	ts := newTestServer(t, serverConfig{})

	rec := ts.do(uploadRequest(t, "../../holiday clip.mp4", mp4Bytes(2048), map[string]string{
		"language":       "pt-BR",
		"sourceLanguage": "en",
	}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, ts.submitter.inputs, 1)
	input := ts.submitter.inputs[0]
	assert.Equal(t, "pt", input.TargetLanguage)
	assert.Equal(t, "en", input.SourceLanguage)
	assert.Equal(t, "mp4", input.Format)
	assert.NotContains(t, input.OriginalName, "/")
	assert.Equal(t, ts.incoming, filepath.Dir(input.SourceRef))

	data, err := os.ReadFile(input.SourceRef)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestServer_SubmitUploadRejections(t *testing.T) {
	t.Run("not a video", func(t *testing.T) {
		ts := newTestServer(t, serverConfig{})
		rec := ts.do(uploadRequest(t, "notes.mp4", []byte("just some text pretending"), map[string]string{"language": "vi"}))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Empty(t, ts.submitter.inputs)
	})

	t.Run("too large", func(t *testing.T) {
		ts := newTestServer(t, serverConfig{maxBytes: 1024})
		rec := ts.do(uploadRequest(t, "big.mp4", mp4Bytes(4096), map[string]string{"language": "vi"}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		ts := newTestServer(t, serverConfig{})
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("language", "vi"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/jobs", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
	})
}

func TestServer_SubmitRateLimited(t *testing.T) {
	ts := newTestServer(t, serverConfig{limiter: ratelimit.NewSubmitLimiter(1, time.Minute, time.Minute)})
	body := submitRequest{SourceURL: "https://x/clip.mp4", Language: "vi"}

	require.Equal(t, http.StatusAccepted, ts.do(jsonRequest(http.MethodPost, "/jobs", body)).Code)

	rec := ts.do(jsonRequest(http.MethodPost, "/jobs", body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Len(t, ts.submitter.inputs, 1)
}

func TestServer_GetAndListJobs(t *testing.T) {
	ts := newTestServer(t, serverConfig{})
	first, err := ts.jobs.Create(domain.JobInput{TargetLanguage: "vi", ClientID: "a"})
	require.NoError(t, err)
	second, err := ts.jobs.Create(domain.JobInput{TargetLanguage: "fr", ClientID: "a"})
	require.NoError(t, err)
	_, err = ts.jobs.Cancel(first.ID, "")
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+second.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, second.ID, decode[domain.Job](t, rec).ID)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[jobList](t, rec).Total)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/jobs?status=cancelled", nil))
	list := decode[jobList](t, rec)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, first.ID, list.Jobs[0].ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodGet, "/jobs?status=paused", nil)).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+domain.NewJobID(), nil)).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodGet, "/jobs/not-a-job", nil)).Code)
}

func TestServer_CancelJob(t *testing.T) {
	ts := newTestServer(t, serverConfig{})
	job, err := ts.jobs.Create(domain.JobInput{TargetLanguage: "vi"})
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/cancel?reason=changed+my+mind", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Job](t, rec)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	last := got.Metadata.StatusHistory[len(got.Metadata.StatusHistory)-1]
	assert.Equal(t, "changed my mind", last.Reason)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_JobEventsPage(t *testing.T) {
	ts := newTestServer(t, serverConfig{})
	job, err := ts.jobs.Create(domain.JobInput{TargetLanguage: "vi"})
	require.NoError(t, err)
	_, err = ts.jobs.Cancel(job.ID, "")
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[events.Page](t, rec)
	require.Len(t, page.Events, 1)
	assert.Equal(t, domain.EventJobCancelled, page.Events[0].Type, "newest first")
	assert.True(t, page.HasMore)
	assert.Greater(t, page.Total, 1)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events?severity=loud", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/jobs/"+domain.NewJobID()+"/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobEventsStream(t *testing.T) {
	ts := newTestServer(t, serverConfig{})
	job, err := ts.jobs.Create(domain.JobInput{TargetLanguage: "vi"})
	require.NoError(t, err)
	_, err = ts.jobs.Cancel(job.ID, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/events?stream=true", nil).WithContext(ctx)
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: job.created\n")
	assert.Contains(t, body, "event: job.cancelled\n")
	assert.True(t, strings.HasSuffix(body, "event: end\ndata: {\"reason\":\"stream closed\"}\n\n"))
	assert.Less(t, strings.Index(body, "job.created"), strings.Index(body, "job.cancelled"))
}

func TestServer_Fonts(t *testing.T) {
	ts := newTestServer(t, serverConfig{})

	q := url.Values{"lang": {"vi"}, "text": {"Xin chào"}}
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/fonts/select?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decode[domain.FontDecision](t, rec)
	assert.NotEmpty(t, decision.Primary)
	assert.GreaterOrEqual(t, decision.Coverage.Percentage, 90.0)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/fonts/select?lang=tlh&text=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q = url.Values{"font": {decision.Primary}, "lang": {"vi"}, "text": {"Xin chào"}}
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/fonts/validate?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decode[domain.FontValidation](t, rec).Score)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/fonts/validate?lang=vi", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Objects(t *testing.T) {
	ts := newTestServer(t, serverConfig{apiKeys: []string{"secret"}})
	obj, err := ts.objects.Upload(context.Background(), strings.NewReader("1\n00:00:00,000 --> 00:00:02,000\nXin chào\n"), "captions-vi.srt")
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/objects/"+obj.Key, nil))
	require.Equal(t, http.StatusOK, rec.Code, "objects are public")
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/x-subrip")
	assert.Contains(t, rec.Body.String(), "Xin chào")
	assert.Empty(t, rec.Header().Get("Content-Disposition"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/objects/"+obj.Key+"?download=captions-vi.srt", nil))
	assert.Equal(t, `attachment; filename="captions-vi.srt"`, rec.Header().Get("Content-Disposition"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/objects/"+strings.Repeat("ab", 32)+".mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/objects/..%2f..%2fetc%2fpasswd", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequiresAPIKey(t *testing.T) {
	ts := newTestServer(t, serverConfig{apiKeys: []string{"secret"}})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}
