package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage(t *testing.T, w, h int, encode func(io.Writer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareImage(t *testing.T) {
	small := testImage(t, 40, 20, png.Encode)

	t.Run("small png is passed through", func(t *testing.T) {
		got, err := PrepareImage(small, 100)
		require.NoError(t, err)
		assert.Equal(t, small, got)
	})

	t.Run("large image is scaled keeping aspect ratio", func(t *testing.T) {
		got, err := PrepareImage(small, 10)
		require.NoError(t, err)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(got))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 10, cfg.Width)
		assert.Equal(t, 5, cfg.Height)
	})

	t.Run("bmp is re-encoded as jpeg", func(t *testing.T) {
		got, err := PrepareImage(testImage(t, 8, 8, bmp.Encode), 0)
		require.NoError(t, err)
		_, format, err := image.DecodeConfig(bytes.NewReader(got))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := PrepareImage([]byte("definitely not an image"), 100)
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})
}

func TestClient_ExtractFaces(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != faceEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotContentType = header.Header.Get("Content-Type")

		_ = json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 2,
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 3, Embedding: []float32{0.1, 0.2, 0.3}, DetScore: 0.99},
				{FaceIndex: 1, Dim: 3, Embedding: []float32{0.4, 0.5, 0.6}, DetScore: 0.75},
			},
			Model: "test",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0, 5*time.Second)
	faces, err := c.ExtractFaces(context.Background(), testImage(t, 4, 4, png.Encode))
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, faces[0])
	assert.Equal(t, "image/png", gotContentType)
}

func TestClient_NoFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"faces_count":0,"faces":[],"model":"test"}`))
	}))
	defer srv.Close()

	faces, err := NewClient(srv.URL, 0, time.Second).ExtractFaces(context.Background(), testImage(t, 4, 4, png.Encode))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"faces":`))
		}},
		{"empty embedding", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"faces_count":1,"faces":[{"face_index":0,"embedding":[]}]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, 0, time.Second).ExtractFaces(context.Background(), testImage(t, 4, 4, png.Encode))
			assert.Error(t, err)
		})
	}
}
