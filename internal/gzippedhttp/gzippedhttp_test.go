package gzippedhttp

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)

	return string(plain)
}

func TestGzipResponse(t *testing.T) {
	type tExpectedResponse struct {
		compressed bool
		body       string
	}

	tests := []struct {
		name           string
		acceptEncoding string
		handler        http.Handler
		expected       tExpectedResponse
	}{
		{
			name:           "json is compressed",
			acceptEncoding: "gzip, deflate",
			handler:        jsonHandler(http.StatusOK, `{"favorites":["Talca"]}`),
			expected:       tExpectedResponse{compressed: true, body: `{"favorites":["Talca"]}`},
		},
		{
			name:     "client without gzip",
			handler:  jsonHandler(http.StatusOK, `{"favorites":[]}`),
			expected: tExpectedResponse{body: `{"favorites":[]}`},
		},
		{
			name:           "errors stay plain",
			acceptEncoding: "gzip",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Access Denied", http.StatusUnauthorized)
			}),
			expected: tExpectedResponse{body: "Access Denied\n"},
		},
		{
			name:           "json error status stays plain",
			acceptEncoding: "gzip",
			handler:        jsonHandler(http.StatusBadRequest, `{}`),
			expected:       tExpectedResponse{body: `{}`},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/favorites", nil)
			if test.acceptEncoding != "" {
				request.Header.Set("Accept-Encoding", test.acceptEncoding)
			}
			recorder := httptest.NewRecorder()

			GzipResponse(test.handler).ServeHTTP(recorder, request)

			if test.expected.compressed {
				assert.Equal(t, "gzip", recorder.Header().Get("Content-Encoding"))
				assert.Equal(t, test.expected.body, gunzip(t, recorder.Body.Bytes()))
				return
			}
			assert.Empty(t, recorder.Header().Get("Content-Encoding"))
			assert.Equal(t, test.expected.body, recorder.Body.String())
		})
	}
}

func TestUngzipRequest(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	})

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(`{"favorites":["Arica"]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	request := httptest.NewRequest(http.MethodPost, "/favorites", &compressed)
	request.Header.Set("Content-Encoding", "gzip")
	recorder := httptest.NewRecorder()
	UngzipRequest(echo).ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, `{"favorites":["Arica"]}`, recorder.Body.String())

	request = httptest.NewRequest(http.MethodPost, "/favorites", strings.NewReader("not gzip"))
	request.Header.Set("Content-Encoding", "gzip")
	recorder = httptest.NewRecorder()
	UngzipRequest(echo).ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	request = httptest.NewRequest(http.MethodPost, "/favorites", strings.NewReader("plain"))
	recorder = httptest.NewRecorder()
	UngzipRequest(echo).ServeHTTP(recorder, request)
	assert.Equal(t, "plain", recorder.Body.String())
}
