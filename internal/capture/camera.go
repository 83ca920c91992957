package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

const (
	CameraCaptureName = "camera-capture.jpg"
	jpegQuality       = 90
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device available")
	ErrCameraInactive   = errors.New("camera is not active")
	ErrTrackEnded       = errors.New("media track ended")
)

// Track is one media track of an acquired stream. Stop releases it and must
// be safe to call more than once.
type Track interface {
	ID() string
	Live() bool
	Stop()
}

// Stream is a live video source acquired from a Device.
type Stream interface {
	Tracks() []Track
	Frame(ctx context.Context) (image.Image, error)
}

// Device hands out video streams. Open must return ErrPermissionDenied (or
// wrap it) when access is refused.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// NoDevice is used when no camera is configured.
type NoDevice struct{}

func (NoDevice) Open(context.Context) (Stream, error) {
	return nil, ErrNoDevice
}

// Camera owns at most one stream at a time.
type Camera struct {
	device       Device
	maxDimension int

	mu     sync.Mutex
	stream Stream
}

// NewCamera wraps device. Captured frames larger than maxDimension on either
// side are scaled down; zero keeps the native size.
func NewCamera(device Device, maxDimension int) *Camera {
	if device == nil {
		device = NoDevice{}
	}
	return &Camera{device: device, maxDimension: maxDimension}
}

// Start acquires a stream. Calling Start on an active camera is a no-op.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}
	stream, err := c.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	c.stream = stream
	return nil
}

// Active reports whether a stream is held.
func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Capture grabs the current frame as a JPEG image and releases the stream,
// whether or not the frame could be read.
func (c *Camera) Capture(ctx context.Context) (Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return Image{}, ErrCameraInactive
	}
	defer c.release()

	frame, err := c.stream.Frame(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("read frame: %w", err)
	}
	data, w, h, err := EncodeFrame(frame, c.maxDimension)
	if err != nil {
		return Image{}, err
	}
	return Image{
		Name:   CameraCaptureName,
		MIME:   "image/jpeg",
		Data:   data,
		Origin: OriginCamera,
		Width:  w,
		Height: h,
	}, nil
}

// Stop releases every track of the current stream.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
}

// ActiveTracks counts the live tracks still held by the camera.
func (c *Camera) ActiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return 0
	}
	n := 0
	for _, track := range c.stream.Tracks() {
		if track.Live() {
			n++
		}
	}
	return n
}

func (c *Camera) release() {
	if c.stream == nil {
		return
	}
	for _, track := range c.stream.Tracks() {
		track.Stop()
	}
	c.stream = nil
}

// EncodeFrame draws frame onto an offscreen RGBA bitmap, downscaling it to fit
// maxDimension when set, and encodes the bitmap as JPEG.
func EncodeFrame(frame image.Image, maxDimension int) ([]byte, int, int, error) {
	if frame == nil {
		return nil, 0, 0, errors.New("encode frame: nil frame")
	}
	src := frame.Bounds()
	if src.Empty() {
		return nil, 0, 0, errors.New("encode frame: empty frame")
	}

	w, h := fitWithin(src.Dx(), src.Dy(), maxDimension)
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == src.Dx() && h == src.Dy() {
		draw.Draw(canvas, canvas.Bounds(), frame, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), frame, src, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

func fitWithin(w, h, max int) (int, int) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
