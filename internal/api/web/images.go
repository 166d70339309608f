package web

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/osa030/podcastr/internal/domain/episode"
)

// maxSourceBytes caps the size of a fetched source image.
const maxSourceBytes = 20 << 20

var (
	errBadImageRequest = errors.New("invalid image request")
	errFetchFailed     = errors.New("failed to fetch image")
	errUnsupported     = errors.New("unsupported image")
)

// ImageConfig holds image optimizer configuration.
type ImageConfig struct {
	CacheSize      int
	MaxWidth       int
	DefaultQuality int
	FetchTimeout   time.Duration
	HTTPClient     *http.Client
	AllowedHosts   []string // Only these hosts are fetched
}

// ImageOptimizer resizes remote thumbnails and re-encodes them as JPEG.
type ImageOptimizer struct {
	config ImageConfig
	client *http.Client
	cache  *lru.Cache[string, []byte]

	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewImageOptimizer creates an optimizer with an LRU of cfg.CacheSize entries.
func NewImageOptimizer(cfg ImageConfig) (*ImageOptimizer, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 3840
	}
	if cfg.DefaultQuality <= 0 || cfg.DefaultQuality > 100 {
		cfg.DefaultQuality = 75
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}

	cache, err := lru.New[string, []byte](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image cache")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	o := &ImageOptimizer{
		config:  cfg,
		client:  client,
		cache:   cache,
		allowed: make(map[string]struct{}),
	}
	o.AllowHosts(cfg.AllowedHosts...)
	return o, nil
}

// AllowHosts adds hosts the optimizer may fetch from.
func (o *ImageOptimizer) AllowHosts(hosts ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			o.allowed[h] = struct{}{}
		}
	}
}

func (o *ImageOptimizer) hostAllowed(host string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.allowed[strings.ToLower(host)]
	return ok
}

// ThumbnailHosts returns the distinct hosts serving the episodes' thumbnails.
func ThumbnailHosts(episodes []episode.Episode) []string {
	seen := make(map[string]struct{})
	var hosts []string
	for _, ep := range episodes {
		u, err := url.Parse(ep.Thumbnail)
		if err != nil || u.Hostname() == "" {
			continue
		}
		h := strings.ToLower(u.Hostname())
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	return hosts
}

// ServeHTTP handles GET /image?url=&w=&q=.
func (o *ImageOptimizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := o.Optimize(r.Context(), q.Get("url"), q.Get("w"), q.Get("q"))
	if err != nil {
		switch {
		case errors.Is(err, errBadImageRequest):
			writeError(w, http.StatusBadRequest, "INVALID_IMAGE_REQUEST", err.Error())
		case errors.Is(err, errUnsupported):
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE", err.Error())
		default:
			writeError(w, http.StatusBadGateway, "IMAGE_FETCH_FAILED", err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Optimize returns the JPEG encoding of the image at rawURL scaled to width.
// Empty width keeps the source width; empty quality uses the default.
func (o *ImageOptimizer) Optimize(ctx context.Context, rawURL, width, quality string) ([]byte, error) {
	src, err := url.Parse(rawURL)
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		return nil, errors.Wrapf(errBadImageRequest, "url %q", rawURL)
	}
	if !o.hostAllowed(src.Hostname()) {
		return nil, errors.Wrapf(errBadImageRequest, "host %q is not allowed", src.Hostname())
	}

	wv := 0
	if width != "" {
		wv, err = strconv.Atoi(width)
		if err != nil || wv <= 0 {
			return nil, errors.Wrapf(errBadImageRequest, "width %q", width)
		}
	}
	wv = min(wv, o.config.MaxWidth)

	qv := o.config.DefaultQuality
	if quality != "" {
		qv, err = strconv.Atoi(quality)
		if err != nil || qv < 1 || qv > 100 {
			return nil, errors.Wrapf(errBadImageRequest, "quality %q", quality)
		}
	}

	key := fmt.Sprintf("%s|%d|%d", src.String(), wv, qv)
	if data, ok := o.cache.Get(key); ok {
		return data, nil
	}

	img, err := o.fetch(ctx, src.String())
	if err != nil {
		return nil, err
	}

	data, err := encode(scale(img, wv), qv)
	if err != nil {
		return nil, err
	}
	o.cache.Add(key, data)
	zlog.Debug().Msgf("images: optimized: url=%s width=%d quality=%d bytes=%d", src, wv, qv, len(data))
	return data, nil
}

// CacheLen returns the number of cached images.
func (o *ImageOptimizer) CacheLen() int {
	return o.cache.Len()
}

func (o *ImageOptimizer) fetch(ctx context.Context, src string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, errors.Wrapf(errBadImageRequest, "url %q", src)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errFetchFailed, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errFetchFailed, "upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, errors.Wrapf(errFetchFailed, "%v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(errUnsupported, "%v", err)
	}
	return img, nil
}

// scale resizes img to width keeping the aspect ratio. Images are never
// upscaled.
func scale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || width >= b.Dx() {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}
