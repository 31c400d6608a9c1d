package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-press-go/internal/compressor"
	"media-press-go/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	images := compressor.NewImageCompressor(log)
	videos := compressor.NewVideoCompressor(log, "", "", t.TempDir())
	return NewServer(cfg, log, images, videos)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressImageEndpoint(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"max_width":  "50",
		"max_height": "50",
	}, "product.png", testPNG(t, 200, 100))

	req := httptest.NewRequest(http.MethodPost, "/api/compress/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))

	width, err := strconv.Atoi(rec.Header().Get("X-Image-Width"))
	require.NoError(t, err)
	height, err := strconv.Atoi(rec.Header().Get("X-Image-Height"))
	require.NoError(t, err)
	assert.Equal(t, 50, width)
	assert.Equal(t, 25, height)
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestCompressImageMissingFile(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("quality", "0.5"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compress/image", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompressImageUndecodableUpload(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, nil, "broken.png", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/compress/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "compression failed")
}

func TestCompressVideoPassThroughJob(t *testing.T) {
	s := newTestServer(t)

	payload := []byte("small clip well under the threshold")
	body, contentType := multipartBody(t, nil, "clip.mp4", payload)

	req := httptest.NewRequest(http.MethodPost, "/api/compress/video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp.Data["job_id"]
	require.NotEmpty(t, jobID)

	// Pass-through completes almost immediately, but the job runs async.
	require.Eventually(t, func() bool {
		status := getJobStatus(t, s, jobID)
		return status == JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resultReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/result", nil)
	resultRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(resultRec, resultReq)

	require.Equal(t, http.StatusOK, resultRec.Code)
	assert.Equal(t, payload, resultRec.Body.Bytes())
}

func getJobStatus(t *testing.T, s *Server, jobID string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.Status
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-job", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBroadcastSurvivesConcurrentWrites(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case received <- struct{}{}:
			default:
			}
		}
	}()

	// Wait for the hub to register the connection before broadcasting.
	require.Eventually(t, func() bool {
		s.wsMutex.RLock()
		defer s.wsMutex.RUnlock()
		return len(s.wsClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.broadcastWSMessage("video_progress", map[string]interface{}{
					"job_id":  "job",
					"percent": g*25 + i,
				})
			}
		}(g)
	}
	wg.Wait()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast reached the client")
	}
}

func TestRegisterJobEvictsExpiredResults(t *testing.T) {
	s := newTestServer(t)

	stale := &videoJob{
		ID:        "stale",
		Status:    JobCompleted,
		UpdatedAt: time.Now().Add(-jobRetention - time.Minute),
		result:    []byte("old payload"),
	}
	running := &videoJob{
		ID:        "running",
		Status:    JobProcessing,
		UpdatedAt: time.Now().Add(-jobRetention - time.Minute),
	}
	s.jobsMutex.Lock()
	s.jobs[stale.ID] = stale
	s.jobs[running.ID] = running
	s.jobsMutex.Unlock()

	s.registerJob(&videoJob{ID: "fresh", Status: JobPending, UpdatedAt: time.Now()})

	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()
	assert.NotContains(t, s.jobs, "stale")
	assert.Contains(t, s.jobs, "running", "unfinished jobs are never evicted")
	assert.Contains(t, s.jobs, "fresh")
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}
