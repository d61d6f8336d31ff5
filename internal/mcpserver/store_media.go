package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/aprobridge/internal/noteservice"
)

const maxMediaSize = 50 << 20 // 50 MB

var mimeToExt = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/svg+xml":   "svg",
	"application/pdf": "pdf",
	"audio/mpeg":      "mp3",
	"audio/ogg":       "ogg",
	"audio/wav":       "wav",
	"audio/x-wav":     "wav",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
}

type storeResult struct {
	Filename string `json:"filename"`
	// HTMLRef is ready to paste into a note field.
	HTMLRef string `json:"htmlRef"`
}

func (s *Server) storeMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b64 := req.GetString("data", "")
	rawURL := req.GetString("url", "")
	ext := strings.TrimPrefix(req.GetString("extension", ""), ".")

	var (
		data        []byte
		detectedExt string
		err         error
	)
	switch {
	case b64 != "" && rawURL != "":
		return mcp.NewToolResultError("pass either data or url, not both"), nil
	case b64 != "":
		data, err = noteservice.DecodeBase64(b64)
		if err != nil {
			err = fmt.Errorf("invalid base64 data: %w", err)
		}
	case strings.HasPrefix(rawURL, "data:"):
		data, detectedExt, err = decodeDataURI(rawURL)
	case rawURL != "":
		data, detectedExt, err = fetchHTTP(ctx, rawURL)
	default:
		return mcp.NewToolResultError("one of data or url is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxMediaSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxMediaSize)), nil
	}
	if ext == "" {
		ext = detectedExt
	}

	name, err := s.svc.WriteMedia(ctx, data, ext)
	if err != nil {
		return s.fail("store_media", err)
	}
	return jsonResult(storeResult{Filename: name, HTMLRef: htmlRef(name)})
}

// htmlRef is how a note field embeds the stored file.
func htmlRef(name string) string {
	switch path.Ext(name) {
	case ".mp3", ".ogg", ".wav", ".mp4", ".webm":
		return fmt.Sprintf("[sound:%s]", name)
	default:
		return fmt.Sprintf(`<img src="%s">`, name)
	}
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := noteservice.DecodeBase64(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 data: %w", err)
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return data, mimeToExt[mime], nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxMediaSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxMediaSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxMediaSize)
	}

	ext := mimeToExt[strings.Split(resp.Header.Get("Content-Type"), ";")[0]]
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(parsed.Path), ".")
	}
	return data, ext, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}
