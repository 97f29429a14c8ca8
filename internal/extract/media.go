package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	photoTimeout  = 10 * time.Second
	maxPhotoBytes = 10 << 20
	// longest edge accepted by the vision models without server-side
	// downscaling
	maxPhotoEdge = 1568
)

// downloadPhoto fetches one photo URL. Failures are soft: the caller
// logs and continues without the image rather than dropping the
// mention.
func (e *Extractor) downloadPhoto(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, photoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build photo request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch photo: status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return nil, "", fmt.Errorf("fetch photo: content-type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	return sanitizePhoto(data, ct)
}

// sanitizePhoto re-encodes the downloaded image as JPEG, downscaling
// anything larger than the vision models accept. Re-encoding also
// strips metadata and normalizes whatever format the CDN served.
func sanitizePhoto(data []byte, contentType string) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// not decodable as an image we know; pass through as-is
		slog.Debug("photo not re-encoded", "content_type", contentType, "error", err)
		return data, contentType, nil
	}

	b := img.Bounds()
	if b.Dx() > maxPhotoEdge || b.Dy() > maxPhotoEdge {
		img = imaging.Fit(img, maxPhotoEdge, maxPhotoEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, "", fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// firstPhotoURL returns the URL of the first photo attachment on the
// tweet resolvable through the media lookup.
func firstPhotoURL(keys []string, media map[string]string) string {
	for _, k := range keys {
		if u, ok := media[k]; ok && u != "" {
			return u
		}
	}
	return ""
}
