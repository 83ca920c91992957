package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const maxSnapshotBytes = 32 << 20

// SnapshotDevice reads frames from a camera that publishes still images over
// HTTP (most IP cameras expose a snapshot.jpg style endpoint).
type SnapshotDevice struct {
	URL        string
	httpClient *http.Client
}

// NewSnapshotDevice returns a device polling url. A nil client gets a client
// with a short timeout.
func NewSnapshotDevice(url string, client *http.Client) *SnapshotDevice {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SnapshotDevice{URL: url, httpClient: client}
}

// Open probes the endpoint once so that refused access surfaces at start,
// the way a permission prompt would.
func (d *SnapshotDevice) Open(ctx context.Context) (Stream, error) {
	if d.URL == "" {
		return nil, ErrNoDevice
	}
	stream := &snapshotStream{
		device: d,
		track:  &videoTrack{id: uuid.NewString()},
	}
	stream.track.live.Store(true)

	if _, err := d.fetch(ctx); err != nil {
		stream.track.Stop()
		return nil, err
	}
	return stream, nil
}

func (d *SnapshotDevice) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status=%d", ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("snapshot error: status=%d", resp.StatusCode)
	}

	frame, _, err := image.Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return frame, nil
}

type snapshotStream struct {
	device *SnapshotDevice
	track  *videoTrack
}

func (s *snapshotStream) Tracks() []Track {
	return []Track{s.track}
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	if !s.track.Live() {
		return nil, ErrTrackEnded
	}
	return s.device.fetch(ctx)
}

type videoTrack struct {
	id   string
	live atomic.Bool
}

func (t *videoTrack) ID() string { return t.id }
func (t *videoTrack) Live() bool { return t.live.Load() }
func (t *videoTrack) Stop()      { t.live.Store(false) }
