package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PublicPathPrefix is the URL path under which blobs are served.
const PublicPathPrefix = "/blobs/"

const defaultMaxFetchBytes = 64 << 20

var (
	// ErrHostNotAllowed is returned when a remote URL points outside the
	// public base URL and the configured fetch hosts.
	ErrHostNotAllowed = errors.New("image host not allowed")
	// ErrTooLarge is returned when a remote image exceeds the fetch limit.
	ErrTooLarge = errors.New("image too large")
)

var extensionByContentType = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/svg+xml": ".svg",
}

// ImageStore turns a Store into the upload/publicUrl/fetch contract used by
// the edit services. Every uploaded blob gets a fresh key, so assets are
// never overwritten.
type ImageStore struct {
	store         Store
	publicBaseURL string
	allowedHosts  map[string]bool
	maxFetchBytes int64
	httpClient    *http.Client
}

type ImageStoreOption func(*ImageStore)

// WithAllowedHosts adds hosts remote fetches may reach besides the public
// base URL's host. Entries match either a bare hostname or host:port.
func WithAllowedHosts(hosts ...string) ImageStoreOption {
	return func(s *ImageStore) {
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				s.allowedHosts[host] = true
			}
		}
	}
}

// WithMaxFetchBytes caps the size of remote images.
func WithMaxFetchBytes(limit int64) ImageStoreOption {
	return func(s *ImageStore) {
		if limit > 0 {
			s.maxFetchBytes = limit
		}
	}
}

func NewImageStore(store Store, publicBaseURL string, opts ...ImageStoreOption) *ImageStore {
	s := &ImageStore{
		store:         store,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		allowedHosts:  map[string]bool{},
		maxFetchBytes: defaultMaxFetchBytes,
	}
	if base, err := url.Parse(s.publicBaseURL); err == nil && base.Host != "" {
		s.allowedHosts[strings.ToLower(base.Host)] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpClient = &http.Client{
		Timeout: 60 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return s.checkHost(req.URL)
		},
	}
	return s
}

func (s *ImageStore) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Host)
	if s.allowedHosts[host] || s.allowedHosts[strings.ToLower(u.Hostname())] {
		return nil
	}
	return fmt.Errorf("%s: %w", u.Host, ErrHostNotAllowed)
}

// Upload stores data under a new key below prefix and returns its public URL.
func (s *ImageStore) Upload(ctx context.Context, prefix string, data []byte, contentType string) (string, error) {
	key := uuid.NewString() + extensionByContentType[contentType]
	if prefix != "" {
		key = strings.Trim(prefix, "/") + "/" + key
	}
	return s.UploadNamed(ctx, key, data, contentType)
}

// UploadNamed stores data under the given key and returns its public URL.
func (s *ImageStore) UploadNamed(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("refusing to upload empty blob")
	}
	if err := s.store.Put(ctx, key, Blob{Data: data, ContentType: contentType}); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *ImageStore) PublicURL(key string) string {
	return s.publicBaseURL + PublicPathPrefix + key
}

// KeyFromURL returns the store key for a URL produced by PublicURL. Relative
// "/blobs/..." paths are accepted too.
func (s *ImageStore) KeyFromURL(rawURL string) (string, bool) {
	for _, prefix := range []string{s.publicBaseURL + PublicPathPrefix, PublicPathPrefix} {
		if prefix == PublicPathPrefix && strings.Contains(rawURL, "://") {
			continue
		}
		if key, ok := strings.CutPrefix(rawURL, prefix); ok && key != "" {
			return key, true
		}
	}
	return "", false
}

// Read returns a stored blob by key.
func (s *ImageStore) Read(ctx context.Context, key string) (*Blob, error) {
	return s.store.Get(ctx, key)
}

// Fetch resolves bytes for a locally served URL, a data: URL or an http(s)
// URL on an allowed host.
func (s *ImageStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURL(rawURL)
	}
	if key, ok := s.KeyFromURL(rawURL); ok {
		blob, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return blob.Data, nil
	}
	return s.fetchRemote(ctx, rawURL)
}

func (s *ImageStore) fetchRemote(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("unsupported image url %q", rawURL)
	}
	if err := s.checkHost(parsed); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", rawURL, ErrBlobNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > s.maxFetchBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w", rawURL, s.maxFetchBytes, ErrTooLarge)
	}
	return data, nil
}

func decodeDataURL(rawURL string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(rawURL, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode data url: %w", err)
		}
		return data, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data url: %w", err)
	}
	return []byte(unescaped), nil
}
