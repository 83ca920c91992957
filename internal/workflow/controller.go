package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"image-converter/internal/capture"
	"image-converter/internal/convert"
)

// Messages shown to the user.
const (
	MsgConversionFailed = "Conversion failed. Please try again."
	MsgDownloadFailed   = "Failed to download the file. Please try again."
	MsgCameraDenied     = "Unable to access camera. Please check permissions."
	MsgCaptureFailed    = "Unable to capture an image from the camera. Please try again."
)

// File is a downloaded conversion result.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Controller owns the workflow state of one user and runs the remote calls.
// Conversions run in the background; their responses are applied only if
// they still match the awaited request.
type Controller struct {
	converter convert.Converter
	camera    *capture.Camera

	// ctx bounds background conversions; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	pending    int
	lastActive time.Time
}

// NewController returns an idle controller. A nil camera means no camera.
func NewController(converter convert.Converter, camera *capture.Camera) *Controller {
	if camera == nil {
		camera = capture.NewCamera(nil, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		converter:  converter,
		camera:     camera,
		ctx:        ctx,
		cancel:     cancel,
		state:      Initial(),
		lastActive: time.Now(),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	return c.state
}

// Pending is the number of conversion requests still on the wire, including
// abandoned ones.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// LastActive is when the controller was last used.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// SelectImage makes img the current image. An active camera is stopped first.
func (c *Controller) SelectImage(img capture.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	if c.state.CameraActive {
		c.camera.Stop()
		c.state, _ = c.state.Apply(StopCamera{})
	}
	return c.apply(SelectImage{Image: img})
}

// StartCamera acquires the camera. Denied access leaves the state as it was
// apart from the error message.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	c.touch()
	if c.state.Converting() {
		c.mu.Unlock()
		return ErrConversionInFlight
	}
	if c.state.CameraActive {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// the device may block, keep the state readable meanwhile
	err := c.camera.Start(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Printf("workflow: start camera: %v", err)
		c.state, _ = c.state.Apply(CameraFailed{Message: MsgCameraDenied})
		return err
	}
	if err := c.apply(StartCamera{}); err != nil {
		c.camera.Stop()
		return err
	}
	return nil
}

// Capture takes a snapshot from the active camera and selects it.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	c.touch()
	if !c.state.CameraActive {
		c.mu.Unlock()
		return ErrCameraNotActive
	}
	c.mu.Unlock()

	img, err := c.camera.Capture(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Printf("workflow: capture: %v", err)
		if applyErr := c.apply(CaptureFailed{Message: MsgCaptureFailed}); applyErr != nil {
			return applyErr
		}
		return err
	}
	return c.apply(CaptureFrame{Image: img})
}

// StopCamera releases the camera without capturing.
func (c *Controller) StopCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.camera.Stop()
	return c.apply(StopCamera{})
}

// ActiveTracks is the number of camera tracks currently held.
func (c *Controller) ActiveTracks() int {
	return c.camera.ActiveTracks()
}

// RequestConversion starts converting the current image. It returns at once;
// ErrConversionInFlight means a conversion is already awaited and nothing
// changed.
func (c *Controller) RequestConversion(kind convert.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	if err := c.apply(RequestConversion{Kind: kind}); err != nil {
		return err
	}
	token := c.state.InFlight
	img := *c.state.Image

	c.pending++
	c.wg.Add(1)
	go c.runConversion(token, img, kind)
	return nil
}

func (c *Controller) runConversion(token uint64, img capture.Image, kind convert.Kind) {
	defer c.wg.Done()

	data, err := c.converter.Convert(c.ctx, img, kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	var action Action = ConversionSucceeded{Token: token, Kind: kind, Data: data}
	if err != nil {
		log.Printf("workflow: conversion error: %v", err)
		action = ConversionFailed{Token: token, Message: MsgConversionFailed}
	}
	if err := c.apply(action); errors.Is(err, ErrStaleResponse) {
		log.Printf("workflow: discarding response of request %d", token)
	}
}

// Download fetches the current result as a file of the given format. A
// failure is recorded in the state but the result is kept.
func (c *Controller) Download(ctx context.Context, format convert.Format) (File, error) {
	if _, err := convert.ParseFormat(string(format)); err != nil {
		return File{}, err
	}

	c.mu.Lock()
	c.touch()
	if c.state.Result == nil {
		c.mu.Unlock()
		return File{}, ErrNoResult
	}
	result := c.state.Result
	c.mu.Unlock()

	content, err := c.converter.Download(ctx, result.Data, format)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Result != result {
		// a new image or conversion replaced the result meanwhile
		return File{}, fmt.Errorf("download %s: %w: result replaced", format, ErrNoResult)
	}
	if err != nil {
		log.Printf("workflow: download error: %v", err)
		_ = c.apply(DownloadFailed{Message: MsgDownloadFailed})
		return File{}, fmt.Errorf("download %s: %w", format, err)
	}
	_ = c.apply(DownloadSucceeded{})

	return File{
		Name:        format.FileName(),
		ContentType: format.ContentType(),
		Data:        content,
	}, nil
}

// Wait blocks until background conversions have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close releases the camera, abandons pending work and resets the state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.camera.Stop()
	c.state, _ = c.state.Apply(Reset{})
	c.cancel()
}

// apply must be called with mu held.
func (c *Controller) apply(a Action) error {
	next, err := c.state.Apply(a)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) touch() {
	c.lastActive = time.Now()
}
