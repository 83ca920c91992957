package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"image-converter/internal/capture"
	"image-converter/internal/convert"
	"image-converter/internal/util"
	"image-converter/internal/workflow"
)

const (
	maxMultipartMemory = 8 << 20 // 8 MB
	sessionsPrefix     = "/api/sessions/"
)

type Server struct {
	mux           *http.ServeMux
	sessions      *SessionManager
	maxImageBytes int64
}

func NewServer(sessions *SessionManager, maxImageBytes int64) *Server {
	if maxImageBytes <= 0 {
		maxImageBytes = capture.DefaultMaxImageBytes
	}
	s := &Server{
		mux:           http.NewServeMux(),
		sessions:      sessions,
		maxImageBytes: maxImageBytes,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/sessions", s.handleCreateSession)
	s.mux.HandleFunc(sessionsPrefix, s.handleSessionActions)
}

// ImageView describes the selected image without its bytes.
type ImageView struct {
	Name   string `json:"name"`
	MIME   string `json:"mime"`
	Size   int    `json:"size"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Origin string `json:"origin"`
}

// StateView is the workflow state as the page sees it.
type StateView struct {
	SessionID    string     `json:"sessionId"`
	Status       string     `json:"status"`
	Generation   uint64     `json:"generation"`
	Image        *ImageView `json:"image,omitempty"`
	Preview      string     `json:"preview,omitempty"`
	PreviewURL   string     `json:"previewUrl,omitempty"`
	Converting   bool       `json:"converting"`
	Converted    string     `json:"converted,omitempty"`
	Formats      []string   `json:"formats,omitempty"`
	CanDownload  bool       `json:"canDownload"`
	CameraActive bool       `json:"cameraActive"`
	Message      string     `json:"message,omitempty"`
}

func newStateView(id string, st workflow.State, withPreview bool) StateView {
	view := StateView{
		SessionID:    id,
		Status:       string(st.Status),
		Generation:   st.Generation,
		Converting:   st.Converting(),
		CanDownload:  st.CanDownload(),
		CameraActive: st.CameraActive,
		Message:      st.Err,
	}
	if img := st.Image; img != nil {
		view.Image = &ImageView{
			Name:   img.Name,
			MIME:   img.MIME,
			Size:   img.Size(),
			Width:  img.Width,
			Height: img.Height,
			Origin: string(img.Origin),
		}
		view.PreviewURL = fmt.Sprintf("%s%s/preview?g=%d", sessionsPrefix, id, st.Generation)
		if withPreview {
			view.Preview = img.Preview()
		}
	}
	if res := st.Result; res != nil {
		view.Converted = string(res.Kind)
		for _, f := range res.Formats() {
			view.Formats = append(view.Formats, string(f))
		}
	}
	return view
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	session := s.sessions.Create()
	writeJSON(w, http.StatusCreated, newStateView(session.ID, session.ctrl.State(), false))
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, sessionsPrefix)
	path = strings.Trim(path, "/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	session, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch action {
	case "":
		s.handleSession(w, r, session)
	case "image":
		s.handleSelectImage(w, r, session)
	case "preview":
		s.handlePreview(w, r, session)
	case "camera/start", "camera/capture", "camera/stop":
		s.handleCamera(w, r, session, strings.TrimPrefix(action, "camera/"))
	case "convert":
		s.handleConvert(w, r, session)
	case "download":
		s.handleDownload(w, r, session)
	case "close":
		// pages leaving use sendBeacon, which can only POST
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.sessions.Delete(session.ID)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, session *Session) {
	switch r.Method {
	case http.MethodGet:
		withPreview := r.URL.Query().Get("preview") == "1"
		writeJSON(w, http.StatusOK, newStateView(session.ID, session.ctrl.State(), withPreview))
	case http.MethodDelete:
		s.sessions.Delete(session.ID)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image uploaded")
		return
	}
	defer file.Close()

	img, err := capture.FromFile(header.Filename, header.Header.Get("Content-Type"), file, s.maxImageBytes)
	if err != nil {
		log.Printf("session %s: reject upload %s: %v", session.ID, util.Truncate(header.Filename, 48), err)
		switch {
		case errors.Is(err, capture.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, capture.ErrNotImage), errors.Is(err, capture.ErrEmptyImage):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	// canvas snapshots taken by the page's own camera
	if r.FormValue("source") == string(capture.OriginCamera) {
		img.Origin = capture.OriginCamera
	}

	if err := session.ctrl.SelectImage(img); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newStateView(session.ID, session.ctrl.State(), true))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	img := session.ctrl.State().Image
	if img == nil {
		writeError(w, http.StatusNotFound, workflow.ErrNoImage.Error())
		return
	}
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(img.Data)
	}
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request, session *Session, op string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var err error
	switch op {
	case "start":
		err = session.ctrl.StartCamera(r.Context())
	case "capture":
		err = session.ctrl.Capture(r.Context())
	case "stop":
		err = session.ctrl.StopCamera()
	}

	st := session.ctrl.State()
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, capture.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, capture.ErrNoDevice):
			status = http.StatusNotFound
		case errors.Is(err, workflow.ErrCameraNotActive), errors.Is(err, workflow.ErrConversionInFlight):
			status = http.StatusConflict
		}
		message := st.Err
		if message == "" {
			message = err.Error()
		}
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(session.ID, st, op == "capture"))
}

type convertRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload convertRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	kind, err := convert.ParseKind(payload.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "type must be 'text' or 'excel'")
		return
	}

	if err := session.ctrl.RequestConversion(kind); err != nil {
		switch {
		case errors.Is(err, workflow.ErrConversionInFlight), errors.Is(err, workflow.ErrCameraActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, workflow.ErrNoImage):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, newStateView(session.ID, session.ctrl.State(), false))
}

type downloadRequest struct {
	Format string `json:"format"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	format, err := convert.ParseFormat(payload.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "format must be 'txt' or 'xlsx'")
		return
	}

	file, err := session.ctrl.Download(r.Context(), format)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNoResult):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadGateway, workflow.MsgDownloadFailed)
		}
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, file.Name))
	w.Header().Set("Content-Length", fmt.Sprint(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
