package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func brotliRouter(body string, contentType string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/payload", func(c *gin.Context) {
		c.Data(http.StatusOK, contentType, []byte(body))
	})
	return r
}

func TestBrotli_CompressesLargeJSON(t *testing.T) {
	body := `{"questions":"` + strings.Repeat("analogy ", 400) + `"}`
	r := brotliRouter(body, "application/json; charset=utf-8")

	req := httptest.NewRequest(http.MethodGet, "/payload", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "br" {
		t.Fatalf("expected br encoding, got %q", got)
	}
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(plain) != body {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(plain), len(body))
	}
}

func TestBrotli_LeavesSmallAndBinaryBodiesAlone(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{"small json", `{"ok":true}`, "application/json"},
		{"large image", strings.Repeat("x", 4096), "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := brotliRouter(tt.body, tt.contentType)
			req := httptest.NewRequest(http.MethodGet, "/payload", nil)
			req.Header.Set("Accept-Encoding", "br")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Content-Encoding"); got != "" {
				t.Fatalf("expected no encoding, got %q", got)
			}
			if w.Body.String() != tt.body {
				t.Fatalf("body altered")
			}
		})
	}
}

func TestBrotli_RequiresAcceptEncoding(t *testing.T) {
	body := strings.Repeat("a", 2048)
	r := brotliRouter(body, "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payload", nil))

	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != body {
		t.Fatal("expected plain response without Accept-Encoding")
	}
}
