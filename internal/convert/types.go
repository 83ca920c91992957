package convert

import (
	"context"
	"errors"
	"fmt"

	"image-converter/internal/capture"
)

var (
	ErrConversionFailed = errors.New("conversion failed")
	ErrDownloadFailed   = errors.New("download failed")
	ErrUnknownKind      = errors.New("unknown conversion kind")
	ErrUnknownFormat    = errors.New("unknown download format")
)

// Kind is the output requested from the conversion service.
type Kind string

const (
	KindText  Kind = "text"
	KindExcel Kind = "excel"
)

// Format is a downloadable file format.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatXLSX Format = "xlsx"
)

// Formats lists every format a conversion result can be downloaded as.
var Formats = []Format{FormatTXT, FormatXLSX}

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindText, KindExcel:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatTXT, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// DefaultFormat is the natural download format for a kind.
func (k Kind) DefaultFormat() Format {
	if k == KindExcel {
		return FormatXLSX
	}
	return FormatTXT
}

// FileName is the name a downloaded file is saved under.
func (f Format) FileName() string {
	return "converted." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Converter is the remote conversion service.
type Converter interface {
	// Convert uploads img and returns the encoded result payload.
	Convert(ctx context.Context, img capture.Image, kind Kind) (string, error)

	// Download turns an encoded result into file content of the given format.
	Download(ctx context.Context, data string, format Format) ([]byte, error)
}

// StatusError is returned (wrapped) when the service answers with a non-2xx
// status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d, body=%s", e.Op, e.Status, e.Body)
}
