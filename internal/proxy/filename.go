package proxy

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/security"
)

// looseFileName extracts a file name from Content-Disposition values that
// mime.ParseMediaType rejects, such as unquoted names containing spaces.
var looseFileName = regexp.MustCompile(`(?i)filename\s*=\s*"?([^";]+)"?`)

// fileNameFromDisposition returns the file name announced by the server.
// RFC 5987 filename* wins over filename.
func fileNameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		return security.SanitizeFileName(params["filename"])
	}
	if m := looseFileName.FindStringSubmatch(disposition); m != nil {
		return security.SanitizeFileName(m[1])
	}
	return ""
}

// fileNameFromURL returns the last path segment of u.
func fileNameFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	p := u.EscapedPath()
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	seg := path.Base(p)
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	return security.SanitizeFileName(seg)
}

// describeContent returns the content type of a captured body, preferring the
// declared type, and the extension its bytes suggest.
func describeContent(declared string, body []byte) (contentType, ext string) {
	detected := mimetype.Detect(body)
	contentType = declared
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "" {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	return contentType, detected.Extension()
}

// fileName picks the name a captured response is stored and reported under.
func fileName(resp *http.Response, reqURL *url.URL, ext string) string {
	if name := fileNameFromDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		return name
	}
	if name := fileNameFromURL(reqURL); name != "" {
		if filepath.Ext(name) == "" {
			name += ext
		}
		return name
	}
	return fmt.Sprintf("download-%s%s", uuid.NewString()[:8], ext)
}

// decodeBody reverses Content-Encoding so the saved file holds the real
// content. Unknown encodings are kept as is. At most limit decoded bytes are
// produced.
func decodeBody(body []byte, encoding string, limit int64) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		// Servers disagree on whether deflate carries a zlib header.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		log.Debug().Str("encoding", encoding).Msg("Unsupported content encoding, saving raw body")
		return body, nil
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", limit)
	}
	return out, nil
}
