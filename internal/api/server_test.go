package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/pipeline"
	"github.com/sells-group/docforge/internal/recipe"
	"github.com/sells-group/docforge/internal/store"
	"github.com/sells-group/docforge/internal/upload"
	"github.com/sells-group/docforge/pkg/render"
)

type stubLLM struct {
	mu      sync.Mutex
	prompts []string
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if strings.Contains(prompt, "Return ONLY the number or null") {
		return "null", nil
	}
	return `{"Nama_Proyek": "Laptop", "Harga": "Rp 12.000.000", "Jumlah": 3}`, nil
}

type stubRender struct{}

func (stubRender) Render(_ context.Context, req *render.Request) (*render.Response, error) {
	resp := &render.Response{Status: render.StatusCompleted}
	for _, d := range req.Documents {
		resp.Results = append(resp.Results, render.Result{
			Status:     render.StatusSuccess,
			FileName:   "RAB",
			DocURL:     "https://docs/" + d.GoogleDocID,
			TemplateID: d.GoogleDocID,
		})
	}
	return resp, nil
}

const testRecipe = `{
  "google_doc_id": "doc-rab",
  "placeholders": {
    "Nama_Proyek": "nama proyek",
    "Harga": null,
    "Jumlah": null,
    "Total_CALCULATED": "Harga * Jumlah"
  },
  "examples": {}
}`

func newTestServer(t *testing.T) (*httptest.Server, *stubLLM) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rab.json"), []byte(testRecipe), 0o644))

	llm := &stubLLM{}
	st := store.NewMemory()
	svc := pipeline.New(pipeline.Deps{
		LLM:    llm,
		Render: stubRender{},
		Store:  st,
		Catalog: &recipe.Catalog{
			Root:      dir,
			Threshold: recipe.DefaultThreshold,
			Sets: []recipe.TemplateSet{
				{Name: "pengadaan_small", Default: true, Templates: []string{"rab.docx"}},
			},
		},
	})
	srv := httptest.NewServer(NewServer(svc, st, upload.NewReaderWith(nil, time.Second), Options{
		AllowedOrigins: []string{"https://app.example.com"},
	}))
	t.Cleanup(srv.Close)
	return srv, llm
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp, sess := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]any{
		"description": "Pengadaan laptop 3 unit",
		"budget":      50000000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(model.StageVerification), sess["stage"])
	id, _ := sess["id"].(string)
	require.NotEmpty(t, id)

	resp, sess = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/verify", map[string]any{
		"values": map[string]any{"Jumlah": 2},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StageReview), sess["stage"])
	values, _ := sess["values"].(map[string]any)
	assert.Equal(t, 24_000_000.0, values["Total"])

	resp, sess = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(model.StageSubmitted), sess["stage"])

	resp, err := http.Get(srv.URL + "/sessions/" + id + "/renders")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	_ = resp.Body.Close()
	require.Len(t, records, 1)
	assert.Equal(t, "https://docs/doc-rab", records[0]["doc_url"])

	resp, err = http.Get(srv.URL + "/sessions/" + id + "/review")
	require.NoError(t, err)
	var html bytes.Buffer
	_, _ = html.ReadFrom(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, html.String(), "<table>")

	resp, list := doJSONList(t, srv.URL+"/sessions?stage=submitted")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStart_Errors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]any{"description": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "description is required")

	// The stub never detects a budget.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]any{"description": "Pengadaan laptop"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotNil(t, body["session"])

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sessions", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestWrongStage(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	_, sess := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]any{
		"description": "Pengadaan laptop",
		"budget":      1000,
	})
	id, _ := sess["id"].(string)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/confirm", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStart_Multipart(t *testing.T) {
	t.Parallel()
	srv, llm := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "Pengadaan laptop"))
	require.NoError(t, mw.WriteField("budget", "75000000"))
	fw, err := mw.CreateFormFile("files", "spesifikasi.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("RAM 16GB, SSD 512GB"))
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("files", "gambar.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 0x50})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/sessions", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	require.Len(t, sess.Sources, 1)
	assert.Equal(t, "spesifikasi.txt", sess.Sources[0].Label)
	require.NotNil(t, sess.Budget)
	assert.Equal(t, 75_000_000.0, *sess.Budget)

	llm.mu.Lock()
	defer llm.mu.Unlock()
	assert.Contains(t, llm.prompts[len(llm.prompts)-1], "RAM 16GB")
}

func TestStart_MultipartUploadWarnings(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "Pengadaan laptop"))
	require.NoError(t, mw.WriteField("budget", "75000000"))
	for name, data := range map[string][]byte{
		"spesifikasi.txt": []byte("RAM 16GB"),
		"gambar.png":      {0x89, 0x50},
		"kosong.txt":      []byte("   \n"),
		"rusak.txt":       {0xff, 0xfe, 0xfd},
	} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/sessions", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	require.Len(t, sess.Sources, 1)
	assert.Equal(t, "spesifikasi.txt", sess.Sources[0].Label)

	joined := strings.Join(sess.Errors, "\n")
	for _, name := range []string{"gambar.png", "kosong.txt", "rusak.txt"} {
		assert.Contains(t, joined, name)
	}

	// Warnings are persisted with the session.
	resp, got := doJSON(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, got["errors"], len(sess.Errors))
}

func TestCORS(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
