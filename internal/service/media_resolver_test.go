package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMedia_DecodesDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("image bytes"))
	media, err := resolveMedia(context.Background(), http.DefaultClient, "data:image/png;base64,"+payload, "image")

	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), media.Data)
	assert.Equal(t, "image/png", media.Mime)
}

func TestResolveMedia_FetchesHTTPReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("remote bytes"))
	}))
	defer srv.Close()

	media, err := resolveMedia(context.Background(), srv.Client(), srv.URL+"/img.jpg", "image")

	require.NoError(t, err)
	assert.Equal(t, []byte("remote bytes"), media.Data)
	assert.Equal(t, "image/jpeg", media.Mime)
}

func TestResolveMedia_FetchFailureIsResolutionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := resolveMedia(context.Background(), srv.Client(), srv.URL+"/gone.jpg", "image")

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.False(t, retryable(err))
}

func TestResolveMedia_RejectsUnknownScheme(t *testing.T) {
	_, err := resolveMedia(context.Background(), http.DefaultClient, "ftp://example.com/img.jpg", "image")

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
}

func TestDecodeDataURI(t *testing.T) {
	data, mime, err := decodeDataURI("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte("x"), data)

	_, _, err = decodeDataURI("data:image/jpeg,notbase64")
	assert.Error(t, err)
}

func TestUploadFilename(t *testing.T) {
	// JPEG magic bytes sniff to .jpg regardless of the tag.
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46}
	assert.Equal(t, "upload.jpg", uploadFilename(jpeg, "video"))

	assert.Equal(t, "upload.mp4", uploadFilename([]byte("unsniffable"), "video"))
	assert.Equal(t, "upload.jpg", uploadFilename([]byte("unsniffable"), "image"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))

	// The cut point lands mid-rune; the whole rune is dropped.
	assert.Equal(t, "a", truncate("aéb", 2))

	long := strings.Repeat("é", 600)
	cut := truncate(long, 1000)
	assert.True(t, utf8.ValidString(cut))
	assert.LessOrEqual(t, len(cut), 1000)
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, retryable(&ValidationError{Message: "bad input"}))
	assert.False(t, retryable(&ProviderError{StatusCode: 401, Message: "unauthorized"}))
	assert.False(t, retryable(&ProviderError{StatusCode: 404, Message: "gone"}))
	assert.True(t, retryable(&ProviderError{StatusCode: 503, Message: "overloaded"}))
	assert.True(t, retryable(assert.AnError))
}
