// Package workflow sequences capture, conversion and download for one user.
//
// State is an immutable value; every change goes through State.Apply, which
// either returns the next state or rejects the action and returns the
// current state untouched.
package workflow

import (
	"errors"

	"image-converter/internal/capture"
	"image-converter/internal/convert"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusCaptureActive Status = "capture_active"
	StatusImageSelected Status = "image_selected"
	StatusConverting    Status = "converting"
	StatusConverted     Status = "converted"
	StatusError         Status = "error"
)

var (
	ErrConversionInFlight = errors.New("a conversion is already in progress")
	ErrNoImage            = errors.New("no image selected")
	ErrNoResult           = errors.New("nothing converted yet")
	ErrStaleResponse      = errors.New("response belongs to an outdated request")
	ErrCameraNotActive    = errors.New("camera is not active")
	ErrCameraActive       = errors.New("camera is active")
)

// Result is what the conversion service returned for the current image.
type Result struct {
	Kind convert.Kind
	Data string
}

// Formats lists the formats the result can be downloaded in.
func (r Result) Formats() []convert.Format {
	return append([]convert.Format(nil), convert.Formats...)
}

// State is the whole workflow state. Start from Initial.
type State struct {
	Status       Status
	Image        *capture.Image
	Result       *Result
	Err          string
	CameraActive bool

	// Generation increases with each new image.
	Generation uint64
	// InFlight is the token of the conversion whose response is awaited, 0
	// when none is.
	InFlight uint64
	// lastToken is the last token handed out.
	lastToken uint64
}

func Initial() State {
	return State{Status: StatusIdle}
}

// Converting reports whether a conversion response is awaited.
func (s State) Converting() bool {
	return s.InFlight != 0
}

// CanDownload reports whether a result exists to download.
func (s State) CanDownload() bool {
	return s.Result != nil
}

// Action is a state transition request.
type Action interface {
	apply(s State) (State, error)
}

// Apply returns the state after a. When a is rejected the error says why and
// the returned state equals s.
func (s State) Apply(a Action) (State, error) {
	next, err := a.apply(s)
	if err != nil {
		return s, err
	}
	return next, nil
}

// SelectImage replaces the image with a file chosen by the user.
type SelectImage struct{ Image capture.Image }

func (a SelectImage) apply(s State) (State, error) {
	if s.CameraActive {
		return s, ErrCameraActive
	}
	return s.withImage(a.Image), nil
}

// StartCamera marks the camera as acquired.
type StartCamera struct{}

func (StartCamera) apply(s State) (State, error) {
	if s.Converting() {
		return s, ErrConversionInFlight
	}
	if s.CameraActive {
		return s, nil
	}
	s.CameraActive = true
	s.Status = StatusCaptureActive
	s.Err = ""
	return s, nil
}

// CameraFailed records that the camera could not be acquired. Everything
// else is left as it was.
type CameraFailed struct{ Message string }

func (a CameraFailed) apply(s State) (State, error) {
	if s.CameraActive {
		s.CameraActive = false
		s.Status = s.restingStatus()
	}
	s.Err = a.Message
	return s, nil
}

// CaptureFrame replaces the image with a camera snapshot.
type CaptureFrame struct{ Image capture.Image }

func (a CaptureFrame) apply(s State) (State, error) {
	if !s.CameraActive {
		return s, ErrCameraNotActive
	}
	s.CameraActive = false
	return s.withImage(a.Image), nil
}

// CaptureFailed records a failed snapshot; the camera is released.
type CaptureFailed struct{ Message string }

func (a CaptureFailed) apply(s State) (State, error) {
	if !s.CameraActive {
		return s, ErrCameraNotActive
	}
	s.CameraActive = false
	s.Status = StatusError
	s.Err = a.Message
	return s, nil
}

// StopCamera releases the camera without capturing.
type StopCamera struct{}

func (StopCamera) apply(s State) (State, error) {
	if !s.CameraActive {
		return s, nil
	}
	s.CameraActive = false
	s.Status = s.restingStatus()
	return s, nil
}

// RequestConversion starts a conversion of the current image. The new token
// is available as InFlight on the returned state.
type RequestConversion struct{ Kind convert.Kind }

func (a RequestConversion) apply(s State) (State, error) {
	if s.Converting() {
		return s, ErrConversionInFlight
	}
	if _, err := convert.ParseKind(string(a.Kind)); err != nil {
		return s, err
	}
	if s.Image == nil {
		return s, ErrNoImage
	}
	if s.CameraActive {
		return s, ErrCameraActive
	}
	s.lastToken++
	s.InFlight = s.lastToken
	s.Status = StatusConverting
	s.Result = nil
	s.Err = ""
	return s, nil
}

// ConversionSucceeded delivers the response of request Token.
type ConversionSucceeded struct {
	Token uint64
	Kind  convert.Kind
	Data  string
}

func (a ConversionSucceeded) apply(s State) (State, error) {
	if a.Token == 0 || a.Token != s.InFlight {
		return s, ErrStaleResponse
	}
	s.InFlight = 0
	s.Status = StatusConverted
	s.Result = &Result{Kind: a.Kind, Data: a.Data}
	s.Err = ""
	return s, nil
}

// ConversionFailed delivers the failure of request Token. The image stays
// selected so the user can retry.
type ConversionFailed struct {
	Token   uint64
	Message string
}

func (a ConversionFailed) apply(s State) (State, error) {
	if a.Token == 0 || a.Token != s.InFlight {
		return s, ErrStaleResponse
	}
	s.InFlight = 0
	s.Status = StatusError
	s.Err = a.Message
	return s, nil
}

// DownloadFailed records a failed download. The result is kept.
type DownloadFailed struct{ Message string }

func (a DownloadFailed) apply(s State) (State, error) {
	if s.Result == nil {
		return s, ErrNoResult
	}
	s.Status = StatusError
	s.Err = a.Message
	return s, nil
}

// DownloadSucceeded clears an earlier download error.
type DownloadSucceeded struct{}

func (DownloadSucceeded) apply(s State) (State, error) {
	if s.Result == nil {
		return s, ErrNoResult
	}
	if !s.Converting() && !s.CameraActive {
		s.Status = StatusConverted
	}
	s.Err = ""
	return s, nil
}

// Reset drops everything except the token counters.
type Reset struct{}

func (Reset) apply(s State) (State, error) {
	return State{
		Status:     StatusIdle,
		Generation: s.Generation + 1,
		lastToken:  s.lastToken,
	}, nil
}

// withImage selects img and abandons any pending conversion: its response
// will not match InFlight and is discarded.
func (s State) withImage(img capture.Image) State {
	s.Image = &img
	s.Result = nil
	s.Err = ""
	s.InFlight = 0
	s.Generation++
	s.Status = StatusImageSelected
	return s
}

func (s State) restingStatus() Status {
	switch {
	case s.Converting():
		return StatusConverting
	case s.Result != nil:
		return StatusConverted
	case s.Image != nil:
		return StatusImageSelected
	default:
		return StatusIdle
	}
}
