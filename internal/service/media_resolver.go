package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// resolvedMedia is a media reference turned into bytes ready for a multipart
// upload.
type resolvedMedia struct {
	Data     []byte
	Mime     string
	Filename string
}

func (m *resolvedMedia) empty() bool {
	return m == nil || len(m.Data) == 0
}

// resolveMedia turns a media reference into raw bytes: embedded data URIs are
// decoded in place, anything http(s) is fetched. The filename extension comes
// from sniffing the bytes, falling back to the content type tag.
func resolveMedia(ctx context.Context, client *http.Client, ref, contentType string) (*resolvedMedia, error) {
	var data []byte
	var mime string

	switch {
	case strings.HasPrefix(ref, "data:"):
		var err error
		data, mime, err = decodeDataURI(ref)
		if err != nil {
			return nil, &ResolutionError{Ref: truncate(ref, 48), Err: err}
		}
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, &ResolutionError{Ref: ref, Err: err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, &ResolutionError{Ref: ref, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &ResolutionError{Ref: ref, Err: fmt.Errorf("fetch returned status %d", resp.StatusCode)}
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ResolutionError{Ref: ref, Err: err}
		}
		mime = resp.Header.Get("Content-Type")
	default:
		return nil, &ResolutionError{Ref: ref, Err: fmt.Errorf("unsupported media reference scheme")}
	}

	return &resolvedMedia{
		Data:     data,
		Mime:     mime,
		Filename: uploadFilename(data, contentType),
	}, nil
}

func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("data URI is not base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, mime, nil
}

// uploadFilename picks the multipart filename the provider sees. Sniffed
// extension wins; the content type tag decides the default otherwise.
func uploadFilename(data []byte, contentType string) string {
	if t, err := filetype.Match(data); err == nil && t != types.Unknown {
		return "upload." + t.Extension
	}
	if contentType == "video" {
		return "upload.mp4"
	}
	return "upload.jpg"
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
