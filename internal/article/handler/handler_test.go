package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/repository"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/service"
	"github.com/lumenpress/lumen/backend/go-services/internal/storage"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
	"github.com/stretchr/testify/require"
)

type staticToken map[string]interface{}

func (t staticToken) Claims(v interface{}) error {
	b, _ := json.Marshal(map[string]interface{}(t))
	return json.Unmarshal(b, v)
}

// tokenVerifier accepts "editor-token" only.
type tokenVerifier struct{}

func (tokenVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if raw != "editor-token" {
		return nil, article.ErrUnauthenticated
	}
	return staticToken{"sub": "u1", "name": "Ada", "email": "ada@example.com"}, nil
}

type fixture struct {
	router *gin.Engine
	repo   *repository.MemoryRepo
	blobs  *storage.MemoryStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	blobs := storage.NewMemoryStorage()
	svc := service.New(repo, blobs, nil, service.Options{MaxUploadBytes: 1 << 10})
	r := gin.New()
	NewArticleHandler(svc, 1<<10).Register(r.Group("/api"), middleware.AuthMiddleware(tokenVerifier{}, nil))
	return &fixture{router: r, repo: repo, blobs: blobs}
}

func (f *fixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer editor-token")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createArticle(t *testing.T, f *fixture, title string) map[string]interface{} {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/articles", `{"title":"`+title+`","excerpt":"x"}`, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["article"].(map[string]interface{})
}

func TestArticleLifecycle(t *testing.T) {
	f := newFixture(t)

	a := createArticle(t, f, "Hello World")
	require.Equal(t, "hello-world", a["slug"])
	require.Equal(t, "draft", a["status"])
	require.Equal(t, "Ada", a["author"])
	id := a["id"].(string)

	b := createArticle(t, f, "Hello World")
	require.Equal(t, "hello-world-1", b["slug"])

	w := f.do(t, http.MethodPut, "/api/articles/"+id+"/sections",
		`{"sections":[{"order":0,"title":"Intro","bodyMarkdown":"# Hi\n\nThis is *bold*.","figures":[{"order":0,"imageRef":"a.png","caption":"A"}]}]}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)["result"].(map[string]interface{})
	require.Equal(t, float64(1), res["sectionsCreated"])
	require.Equal(t, float64(1), res["figuresCreated"])

	// drafts are hidden from the public read
	w = f.do(t, http.MethodGet, "/api/articles/hello-world", "", false)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/articles/"+id+"/publish", `{"publish":true}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "published", decode(t, w)["article"].(map[string]interface{})["status"])

	w = f.do(t, http.MethodGet, "/api/articles/hello-world", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)["article"].(map[string]interface{})
	require.Equal(t, float64(1), view["readingTime"])
	sections := view["sections"].([]interface{})
	require.Len(t, sections, 1)
	sec := sections[0].(map[string]interface{})
	require.Contains(t, sec["bodyHtml"], "<em>bold</em>")
	require.Len(t, sec["figures"].([]interface{}), 1)

	w = f.do(t, http.MethodGet, "/api/articles?page=1&pageSize=5", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	require.Equal(t, float64(1), list["total"])

	w = f.do(t, http.MethodGet, "/api/articles/drafts", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w)["total"])

	w = f.do(t, http.MethodPatch, "/api/articles/"+id, `{"title":"Renamed"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello-world", decode(t, w)["article"].(map[string]interface{})["slug"])

	w = f.do(t, http.MethodDelete, "/api/articles/"+id, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/api/articles/admin/"+id, "", true)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodDelete, "/api/articles/"+id, "", true)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateSectionsWithoutSectionsIsNoop(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, "Quiet")["id"].(string)

	for _, body := range []string{"", `{}`, `{"sections":null}`, `{"sections":"nope"}`} {
		w := f.do(t, http.MethodPut, "/api/articles/"+id+"/sections", body, true)
		require.Equal(t, http.StatusOK, w.Code, body)
		out := decode(t, w)
		require.Equal(t, "No sections to update", out["message"])
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, "Errors")["id"].(string)

	cases := []struct {
		name         string
		method, path string
		body         string
		authed       bool
		want         int
	}{
		{"no token", http.MethodPost, "/api/articles", `{"title":"x"}`, false, http.StatusUnauthorized},
		{"missing title", http.MethodPost, "/api/articles", `{"excerpt":"x"}`, true, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/articles", `{`, true, http.StatusBadRequest},
		{"unknown article", http.MethodPut, "/api/articles/missing/sections", `{"sections":[]}`, true, http.StatusNotFound},
		{"bad section shape", http.MethodPut, "/api/articles/" + id + "/sections", `{"sections":[{"title":1}]}`, true, http.StatusBadRequest},
		{"publish missing flag", http.MethodPost, "/api/articles/" + id + "/publish", `{}`, true, http.StatusBadRequest},
		{"publish bad status", http.MethodPost, "/api/articles/" + id + "/publish", `{"status":"archived"}`, true, http.StatusBadRequest},
		{"admin read needs auth", http.MethodGet, "/api/articles/admin/" + id, "", false, http.StatusUnauthorized},
		{"drafts need auth", http.MethodGet, "/api/articles/drafts", "", false, http.StatusUnauthorized},
		{"unknown slug", http.MethodGet, "/api/articles/nope", "", false, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.body, tc.authed)
			require.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestPublishByStatus(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, "Status")["id"].(string)

	w := f.do(t, http.MethodPost, "/api/articles/"+id+"/publish", `{"status":"published"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)["article"].(map[string]interface{})["publishedAt"]
	require.NotNil(t, first)

	w = f.do(t, http.MethodPost, "/api/articles/"+id+"/publish", `{"status":"draft"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, decode(t, w)["article"].(map[string]interface{})["publishedAt"])

	w = f.do(t, http.MethodPost, "/api/articles/"+id+"/publish", `{"publish":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, first, decode(t, w)["article"].(map[string]interface{})["publishedAt"])
}

func multipartUpload(t *testing.T, fields map[string]string, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + name + `"`}
		if contentType != "" {
			h["Content-Type"] = []string{contentType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, "Pictures")["id"].(string)

	send := func(fields map[string]string, name, contentType string, data []byte) *httptest.ResponseRecorder {
		body, ct := multipartUpload(t, fields, name, contentType, data)
		req := httptest.NewRequest(http.MethodPost, "/api/articles/uploads", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "editor-token")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	w := send(map[string]string{"kind": "cover", "documentId": id}, "cover.png", "image/png", []byte("png"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	ref := out["ref"].(string)
	require.True(t, strings.HasPrefix(ref, "article-"+id+"/cover-"))
	require.NotEmpty(t, out["url"])
	require.True(t, f.blobs.Has(ref))

	// content type falls back to the file extension
	w = send(map[string]string{"kind": "figure"}, "photo.jpg", "", []byte("jpg"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = send(map[string]string{"kind": "cover"}, "", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(map[string]string{"kind": "cover"}, "notes.txt", "text/plain", []byte("hi"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(map[string]string{"kind": "cover"}, "huge.png", "image/png", bytes.Repeat([]byte("x"), 2<<10))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
