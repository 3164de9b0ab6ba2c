package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorKind classifies image fetch failures so callers can tell transport
// trouble from validation rejection without parsing messages.
type ErrorKind string

// Fetch failure classes.
const (
	KindPlaceholder ErrorKind = "placeholder"
	KindContentType ErrorKind = "content_type"
	KindTooLarge    ErrorKind = "too_large"
	KindCorrupt     ErrorKind = "corrupt"
	KindNetwork     ErrorKind = "network"
	KindFilesystem  ErrorKind = "filesystem"
)

// FetchError is the typed failure returned by Fetcher.Fetch.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch image %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch image %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Placeholder graphics carried in menu markup instead of real photos. A URL
// containing any of these never warrants a network call.
var placeholderMarkers = []string{
	"placeholder",
	"no-photo",
	"nophoto",
	"no_image",
	"noimage",
	"default_dish",
}

var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

var knownExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Fetcher downloads dish images into an AssetStore with size, MIME and
// structural validation.
type Fetcher struct {
	store     *AssetStore
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *zap.Logger
}

// NewFetcher builds a Fetcher. maxBytes bounds both the declared and the
// actual body size; timeout covers the whole request.
func NewFetcher(store *AssetStore, userAgent string, maxBytes int64, timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		store: store,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// DerivedFilename reports the filename a successful fetch of rawURL would
// produce, or "" when the URL path carries no recognized image extension.
// The name is stable across repeated fetches of the same URL.
func (f *Fetcher) DerivedFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !knownExtensions[ext] {
		return ""
	}
	return hashName(rawURL) + ext
}

// Exists reports whether filename is already on disk.
func (f *Fetcher) Exists(filename string) bool {
	return f.store.Exists(filename)
}

// Fetch downloads rawURL, validates it and stores it, returning the local
// filename. Every failure mode comes back as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", &FetchError{Kind: KindPlaceholder, URL: rawURL}
	}
	lower := strings.ToLower(rawURL)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return "", &FetchError{Kind: KindPlaceholder, URL: rawURL}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", &FetchError{Kind: KindContentType, URL: rawURL,
			Err: fmt.Errorf("content type %q", contentType)}
	}

	// Reject on the declared length before reading anything.
	if resp.ContentLength > f.maxBytes {
		return "", &FetchError{Kind: KindTooLarge, URL: rawURL,
			Err: fmt.Errorf("declared %d bytes", resp.ContentLength)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return "", &FetchError{Kind: KindTooLarge, URL: rawURL,
			Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}

	filename := f.DerivedFilename(rawURL)
	if filename == "" {
		filename = hashName(rawURL) + ext
	}

	if err := f.store.Write(filename, body); err != nil {
		return "", &FetchError{Kind: KindFilesystem, URL: rawURL, Err: err}
	}

	if err := f.validateStored(filename); err != nil {
		if rmErr := f.store.Remove(filename); rmErr != nil {
			f.logger.Warn("remove corrupt image failed",
				zap.String("filename", filename), zap.Error(rmErr))
		}
		return "", &FetchError{Kind: KindCorrupt, URL: rawURL, Err: err}
	}

	return filename, nil
}

// validateStored re-opens the written file and checks it decodes as an
// actual image, not just bytes with an image content type.
func (f *Fetcher) validateStored(filename string) error {
	r, err := f.store.Open(filename)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, _, err := image.Decode(r); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func hashName(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}
