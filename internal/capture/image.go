package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImageBytes bounds file uploads when no limit is configured.
const DefaultMaxImageBytes = 20 << 20 // 20 MB

var (
	ErrEmptyImage = errors.New("image is empty")
	ErrNotImage   = errors.New("file is not an image")
	ErrTooLarge   = errors.New("image exceeds size limit")
)

// Origin says where an image came from.
type Origin string

const (
	OriginFile   Origin = "file"
	OriginCamera Origin = "camera"
)

// Image is a selected image: raw bytes plus what is needed to preview and
// upload it.
type Image struct {
	Name   string
	MIME   string
	Data   []byte
	Origin Origin
	Width  int
	Height int
}

// Preview returns the image as a data URL suitable for an <img> src.
func (img Image) Preview() string {
	if len(img.Data) == 0 {
		return ""
	}
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Size is the byte length of the image.
func (img Image) Size() int {
	return len(img.Data)
}

// FromFile reads a user-selected file. The MIME type is sniffed from the
// content; declaredMIME is only used when sniffing cannot tell the image
// format apart (it must still be an image type).
func FromFile(name, declaredMIME string, r io.Reader, maxBytes int64) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", name, err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if int64(len(data)) > maxBytes {
		return Image{}, fmt.Errorf("%w: %d bytes max", ErrTooLarge, maxBytes)
	}
	return fromBytes(name, declaredMIME, data, OriginFile)
}

func fromBytes(name, declaredMIME string, data []byte, origin Origin) (Image, error) {
	mimeType := pickMIME(declaredMIME, data)
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}

	img := Image{
		Name:   name,
		MIME:   mimeType,
		Data:   data,
		Origin: origin,
	}
	// formats without a registered decoder are still passed on to the service
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	if img.Name == "" {
		img.Name = "image" + extensionFor(mimeType)
	}
	return img, nil
}

func pickMIME(declared string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
			// sniffing only failed to recognise the format, text is never an image
			if !strings.HasPrefix(sniffed, "text/") {
				return mt
			}
		}
	}
	return sniffed
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
