package workflow

import (
	"errors"
	"reflect"
	"testing"

	"image-converter/internal/capture"
	"image-converter/internal/convert"
)

func photo(name string) capture.Image {
	return capture.Image{Name: name, MIME: "image/png", Data: []byte("png:" + name), Origin: capture.OriginFile}
}

func mustApply(t *testing.T, s State, a Action) State {
	t.Helper()
	next, err := s.Apply(a)
	if err != nil {
		t.Fatalf("apply %T: %v", a, err)
	}
	return next
}

func TestSelectImageSetsPreview(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("photo.png")})
	if s.Status != StatusImageSelected {
		t.Errorf("expected image_selected, got %s", s.Status)
	}
	if s.Image == nil || s.Image.Preview() == "" {
		t.Error("expected a preview before any conversion")
	}
	if s.CanDownload() {
		t.Error("download must be disabled before a result exists")
	}
}

func TestConversionLifecycle(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("photo.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	if s.Status != StatusConverting || s.InFlight == 0 {
		t.Fatalf("expected converting with a token, got %+v", s)
	}

	token := s.InFlight
	s = mustApply(t, s, ConversionSucceeded{Token: token, Kind: convert.KindText, Data: "QUFB"})
	if s.Status != StatusConverted {
		t.Errorf("expected converted, got %s", s.Status)
	}
	if s.Result == nil || s.Result.Data != "QUFB" || s.Result.Kind != convert.KindText {
		t.Fatalf("unexpected result %+v", s.Result)
	}
	if !reflect.DeepEqual(s.Result.Formats(), []convert.Format{convert.FormatTXT, convert.FormatXLSX}) {
		t.Errorf("unexpected formats %v", s.Result.Formats())
	}
	if s.Converting() {
		t.Error("expected no request in flight")
	}
}

func TestRequestConversionWhileConvertingIsNoop(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindExcel})

	next, err := s.Apply(RequestConversion{Kind: convert.KindText})
	if !errors.Is(err, ErrConversionInFlight) {
		t.Fatalf("expected ErrConversionInFlight, got %v", err)
	}
	if !reflect.DeepEqual(next, s) {
		t.Errorf("state changed on a rejected request:\n%+v\n%+v", s, next)
	}
}

func TestRequestConversionGuards(t *testing.T) {
	if _, err := Initial().Apply(RequestConversion{Kind: convert.KindText}); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	if _, err := s.Apply(RequestConversion{Kind: "pdf"}); !errors.Is(err, convert.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestConversionFailureKeepsImage(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	s = mustApply(t, s, ConversionFailed{Token: s.InFlight, Message: MsgConversionFailed})

	if s.Status != StatusError || s.Err == "" {
		t.Fatalf("expected error state with a message, got %+v", s)
	}
	if s.Image == nil || s.Image.Name != "a.png" {
		t.Error("expected the image to be retained")
	}

	// retry is possible
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	if s.Status != StatusConverting || s.Err != "" {
		t.Errorf("expected retry to start converting, got %+v", s)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("first.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	oldToken := s.InFlight

	// a new image abandons the request issued for the first one
	s = mustApply(t, s, SelectImage{Image: photo("second.png")})
	if s.Converting() {
		t.Fatal("expected the old request to be abandoned")
	}

	next, err := s.Apply(ConversionSucceeded{Token: oldToken, Kind: convert.KindText, Data: "OLD"})
	if !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected ErrStaleResponse, got %v", err)
	}
	if next.Result != nil {
		t.Error("stale result must not be displayed")
	}

	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	if s.InFlight == oldToken {
		t.Error("tokens must not be reused")
	}
	if _, err := s.Apply(ConversionFailed{Token: oldToken}); !errors.Is(err, ErrStaleResponse) {
		t.Errorf("expected stale failure to be discarded, got %v", err)
	}
}

func TestNewImageClearsResult(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	s = mustApply(t, s, ConversionSucceeded{Token: s.InFlight, Data: "QUFB"})
	gen := s.Generation

	s = mustApply(t, s, SelectImage{Image: photo("b.png")})
	if s.Result != nil || s.Status != StatusImageSelected {
		t.Errorf("expected result cleared, got %+v", s)
	}
	if s.Generation != gen+1 {
		t.Errorf("expected generation bump, got %d", s.Generation)
	}
}

func TestDownloadFailureKeepsResult(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindExcel})
	s = mustApply(t, s, ConversionSucceeded{Token: s.InFlight, Kind: convert.KindExcel, Data: "QUFB"})

	s = mustApply(t, s, DownloadFailed{Message: MsgDownloadFailed})
	if s.Status != StatusError || s.Err != MsgDownloadFailed {
		t.Errorf("expected download error, got %+v", s)
	}
	if !s.CanDownload() {
		t.Fatal("result must survive a failed download")
	}

	s = mustApply(t, s, DownloadSucceeded{})
	if s.Status != StatusConverted || s.Err != "" {
		t.Errorf("expected converted after retry, got %+v", s)
	}

	if _, err := Initial().Apply(DownloadFailed{}); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}

func TestCameraTransitions(t *testing.T) {
	s := mustApply(t, Initial(), StartCamera{})
	if s.Status != StatusCaptureActive || !s.CameraActive {
		t.Fatalf("expected capture_active, got %+v", s)
	}
	if _, err := s.Apply(SelectImage{Image: photo("a.png")}); !errors.Is(err, ErrCameraActive) {
		t.Errorf("expected ErrCameraActive, got %v", err)
	}

	s = mustApply(t, s, CaptureFrame{Image: capture.Image{Name: capture.CameraCaptureName, MIME: "image/jpeg", Data: []byte{0xff, 0xd8}}})
	if s.Status != StatusImageSelected || s.CameraActive {
		t.Errorf("expected image_selected after capture, got %+v", s)
	}

	s = mustApply(t, s, StartCamera{})
	s = mustApply(t, s, StopCamera{})
	if s.Status != StatusImageSelected || s.CameraActive {
		t.Errorf("expected back to image_selected, got %+v", s)
	}

	s = mustApply(t, s, StartCamera{})
	s = mustApply(t, s, CaptureFailed{Message: MsgCaptureFailed})
	if s.Status != StatusError || s.CameraActive || s.Image == nil {
		t.Errorf("expected error with image kept, got %+v", s)
	}

	if _, err := Initial().Apply(CaptureFrame{}); !errors.Is(err, ErrCameraNotActive) {
		t.Errorf("expected ErrCameraNotActive, got %v", err)
	}
}

func TestCameraFailedLeavesState(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	next := mustApply(t, s, CameraFailed{Message: MsgCameraDenied})
	if next.Err != MsgCameraDenied {
		t.Errorf("expected camera message, got %q", next.Err)
	}
	next.Err = ""
	if !reflect.DeepEqual(next, s) {
		t.Errorf("camera denial changed more than the message:\n%+v\n%+v", s, next)
	}
}

func TestStartCameraWhileConverting(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	if _, err := s.Apply(StartCamera{}); !errors.Is(err, ErrConversionInFlight) {
		t.Errorf("expected ErrConversionInFlight, got %v", err)
	}
}

func TestReset(t *testing.T) {
	s := mustApply(t, Initial(), SelectImage{Image: photo("a.png")})
	s = mustApply(t, s, RequestConversion{Kind: convert.KindText})
	token := s.InFlight

	s = mustApply(t, s, Reset{})
	if s.Status != StatusIdle || s.Image != nil || s.Converting() {
		t.Errorf("expected idle, got %+v", s)
	}
	if _, err := s.Apply(ConversionSucceeded{Token: token, Data: "x"}); !errors.Is(err, ErrStaleResponse) {
		t.Errorf("expected response after reset to be stale, got %v", err)
	}
}
