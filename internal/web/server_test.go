package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-compressor-go/internal/batch"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/testutil"
)

type stubScanner struct{ files []scanner.InputFile }

func (s stubScanner) Scan(args []string, _ bool) scanner.Discovery {
	return scanner.Discovery{Files: s.files}
}

// blockingCompressor holds the batch until its context is cancelled.
type blockingCompressor struct{}

func (blockingCompressor) Compress(ctx context.Context, p compressor.CompressionParams) ([]compressor.CompressionResult, error) {
	<-ctx.Done()
	out := make([]compressor.CompressionResult, len(p.Files))
	for i, f := range p.Files {
		out[i] = compressor.CompressionResult{OriginalPath: f.Path, Status: compressor.StatusSkipped, Message: "batch cancelled"}
		p.Progress(i+1, len(p.Files), out[i])
	}
	return out, nil
}

func baseConfig(out string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output = out
	return cfg
}

func blockingServer(t *testing.T) *Server {
	t.Helper()
	return NewServerWithRunner(baseConfig(t.TempDir()), logger.Discard(), func(c *config.Config, hooks batch.Hooks) (*batch.Runner, func() error) {
		sc := stubScanner{files: []scanner.InputFile{{Path: "/in/a.jpg"}}}
		return batch.NewRunnerWithHooks(c, logger.Discard(), sc, blockingCompressor{}, nil, hooks), func() error { return nil }
	})
}

func do(t *testing.T, s *Server, method, target string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, &buf))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func running(t *testing.T, s *Server) bool {
	_, resp := do(t, s, http.MethodGet, "/api/status", nil)
	return resp.Data.(map[string]interface{})["running"].(bool)
}

func TestStatusIdle(t *testing.T) {
	s := blockingServer(t)
	rec, resp := do(t, s, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.False(t, running(t, s))
}

func TestCompressValidation(t *testing.T) {
	s := blockingServer(t)
	in := t.TempDir()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/compress", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, s, http.MethodPost, "/api/compress", CompressRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = do(t, s, http.MethodPost, "/api/compress", CompressRequest{Inputs: []string{filepath.Join(in, "missing")}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q := 101
	rec, resp = do(t, s, http.MethodPost, "/api/compress", CompressRequest{Inputs: []string{in}, Quality: &q})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "quality")
}

func TestCompressConflictAndStop(t *testing.T) {
	s := blockingServer(t)
	in := t.TempDir()

	rec, _ := do(t, s, http.MethodPost, "/api/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/compress", CompressRequest{Inputs: []string{in}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, running(t, s))

	rec, _ = do(t, s, http.MethodPost, "/api/compress", CompressRequest{Inputs: []string{in}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return !running(t, s) }, 5*time.Second, 10*time.Millisecond)

	_, resp := do(t, s, http.MethodGet, "/api/results", nil)
	results := resp.Data.([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "skipped", results[0].(map[string]interface{})["status"])
}

func TestCompressEndToEndWithWebsocket(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	testutil.WriteFile(t, in, "a.jpg", testutil.JPEG(t, 32, 32, 95))

	s := NewServer(baseConfig(out), logger.Discard())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.clientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	rec, _ := do(t, s, http.MethodPost, "/api/compress", CompressRequest{Inputs: []string{in}})
	require.Equal(t, http.StatusOK, rec.Code)

	var types []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "batch_completed" || msg.Type == "batch_error" {
			break
		}
	}
	assert.Equal(t, []string{"status", "batch_started"}, types[:2])
	assert.Contains(t, types, "file_done")
	assert.Equal(t, "batch_completed", types[len(types)-1])

	require.Eventually(t, func() bool { return !running(t, s) }, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(out, "a.jpg"))
}

func TestListDirectories(t *testing.T) {
	s := blockingServer(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.jpg", testutil.JPEG(t, 8, 8, 90))
	testutil.WriteFile(t, dir, "b.jpg", []byte("not really"))

	rec, resp := do(t, s, http.MethodGet, "/api/directories?path="+dir, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := resp.Data.([]interface{})
	require.Len(t, entries, 2)

	first := entries[0].(map[string]interface{})
	assert.Equal(t, "a.jpg", first["name"])
	assert.Equal(t, "image/jpeg", first["mime"])
	_, tagged := entries[1].(map[string]interface{})["mime"]
	assert.False(t, tagged)

	rec, _ = do(t, s, http.MethodGet, "/api/directories?path=../etc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDirectoriesAllowsDotsInNames(t *testing.T) {
	s := blockingServer(t)
	dir := filepath.Join(t.TempDir(), "a..b")
	testutil.WriteFile(t, dir, "c.jpg", []byte("x"))

	rec, resp := do(t, s, http.MethodGet, "/api/directories?path="+url.QueryEscape(dir), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data.([]interface{}), 1)

	rec, _ = do(t, s, http.MethodGet, "/api/directories?path="+url.QueryEscape("a/../../etc"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
