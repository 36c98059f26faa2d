// Package assets stores activity banner images outside the database.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"rallyup/activityhub/pkg/crypto"
)

var (
	ErrInvalidImage = errors.New("invalid image")
	ErrForeignURL   = errors.New("url does not belong to this store")
)

const bannerContentType = "image/jpeg"

// Store persists encoded banner images and returns their public URL.
type Store interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)
	// Delete removes an asset previously returned by Put.
	Delete(ctx context.Context, url string) error
}

// ProcessBanner decodes an uploaded image, bounds its width and re-encodes it as JPEG.
func ProcessBanner(r io.Reader, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Box)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode banner: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadBanner processes and stores a banner for activityID, returning its URL.
func UploadBanner(ctx context.Context, store Store, activityID uuid.UUID, r io.Reader, maxWidth int) (string, error) {
	body, err := ProcessBanner(r, maxWidth)
	if err != nil {
		return "", err
	}
	suffix, err := crypto.GenerateRandomString(8)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("banners/%s/%s.jpg", activityID, suffix)
	return store.Put(ctx, key, bannerContentType, body)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", ErrForeignURL
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", ErrForeignURL
	}
	return key, nil
}
