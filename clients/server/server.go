// Package server provides the stegcrypt HTTP API: upload a cover image,
// preview it, hide text in it and reveal text from it.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xob0t/stegcrypt/pkg/imageio"
	"github.com/xob0t/stegcrypt/pkg/keystore"
	"github.com/xob0t/stegcrypt/pkg/stego"
)

// ── Image Manager ──

type upload struct {
	Name  string
	Image *imageio.Image
}

type imageManager struct {
	mu     sync.RWMutex
	images map[string]*upload
}

func newImageManager() *imageManager {
	return &imageManager{images: make(map[string]*upload)}
}

func (im *imageManager) add(name string, img *imageio.Image) string {
	id := uuid.NewString()
	im.mu.Lock()
	im.images[id] = &upload{Name: name, Image: img}
	im.mu.Unlock()
	return id
}

func (im *imageManager) get(id string) (*upload, bool) {
	im.mu.RLock()
	u, ok := im.images[id]
	im.mu.RUnlock()
	return u, ok
}

func (im *imageManager) remove(id string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, ok := im.images[id]; !ok {
		return false
	}
	delete(im.images, id)
	return true
}

// ── Server ──

type Server struct {
	mux         *http.ServeMux
	log         logrus.FieldLogger
	keys        *keystore.Manager
	codec       *stego.Codec
	images      *imageManager
	format      imageio.Format
	previewSize int
	maxUpload   int64
}

type Option func(*Server)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithFormat sets the output format used by /api/hide when the request
// does not name one.
func WithFormat(f imageio.Format) Option {
	return func(s *Server) { s.format = f }
}

func WithPreviewSize(px int) Option {
	return func(s *Server) {
		if px > 0 {
			s.previewSize = px
		}
	}
}

// WithMaxUpload caps multipart request bodies at n bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithDecodeOptions is passed through to the codec used by /api/reveal.
func WithDecodeOptions(opts ...stego.DecodeOption) Option {
	return func(s *Server) { s.codec = stego.NewCodec(s.keys, opts...) }
}

func New(keys *keystore.Manager, opts ...Option) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		log:         logrus.StandardLogger(),
		keys:        keys,
		codec:       stego.NewCodec(keys),
		images:      newImageManager(),
		format:      imageio.PNG,
		previewSize: imageio.DefaultThumbnail,
		maxUpload:   32 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/images", s.handleUpload)
	s.mux.HandleFunc("GET /api/images/{id}", s.handleInfo)
	s.mux.HandleFunc("GET /api/images/{id}/preview", s.handlePreview)
	s.mux.HandleFunc("DELETE /api/images/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /api/hide", s.handleHide)
	s.mux.HandleFunc("POST /api/reveal", s.handleReveal)
	s.mux.HandleFunc("GET /api/key", s.handleKey)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start),
	}).Debug("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ListenAndServe serves s on addr, optionally opening a browser on the API
// root once the listener is up.
func ListenAndServe(addr string, s *Server, browser bool) error {
	s.log.WithField("addr", addr).Info("stegcrypt API listening")
	if browser {
		go openBrowser("http://localhost" + addr + "/api/key")
	}
	return http.ListenAndServe(addr, s)
}

// ── Images ──

type imageInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Format        string `json:"format"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Channels      int    `json:"channels"`
	Capacity      int    `json:"capacity"`
	CapacityHuman string `json:"capacityHuman"`
}

func infoFor(id string, u *upload) imageInfo {
	capacity := stego.Capacity(u.Image.Pixels())
	return imageInfo{
		ID:            id,
		Name:          u.Name,
		Format:        u.Image.Format,
		Width:         u.Image.Width(),
		Height:        u.Image.Height(),
		Channels:      u.Image.Channels(),
		Capacity:      capacity,
		CapacityHuman: humanize.IBytes(uint64(capacity)),
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	img, name, err := formImage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := s.images.add(name, img)
	u, _ := s.images.get(id)
	info := infoFor(id, u)

	s.log.WithFields(logrus.Fields{
		"id":       id,
		"name":     name,
		"width":    info.Width,
		"height":   info.Height,
		"capacity": info.CapacityHuman,
	}).Info("image uploaded")

	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u, ok := s.images.get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, infoFor(id, u))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	u, ok := s.images.get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	size := s.previewSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, u.Image.Thumbnail(size)); err != nil {
		http.Error(w, "encode preview: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.images.remove(id) {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ── Hide / Reveal ──

func (s *Server) handleHide(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	img, name, status, err := s.requestImage(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	format := s.format
	if v := r.FormValue("format"); v != "" {
		if format, err = imageio.ParseFormat(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	text := r.FormValue("text")
	pixels := img.Pixels()
	if err := s.codec.Hide(text, pixels); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, stego.ErrCapacity) {
			code = http.StatusUnprocessableEntity
		}
		s.log.WithError(err).WithField("name", name).Warn("hide failed")
		http.Error(w, err.Error(), code)
		return
	}
	if err := img.Put(pixels); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := img.Encode(&buf, format); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.log.WithFields(logrus.Fields{
		"name":   name,
		"format": format,
		"bytes":  humanize.IBytes(uint64(buf.Len())),
		"bits":   stego.RequiredPixels(len(text)),
	}).Info("text hidden")

	w.Header().Set("Content-Type", format.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="hidden.%s"`, format))
	w.Write(buf.Bytes())
}

type revealResponse struct {
	Outcome   string `json:"outcome"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	img, name, status, err := s.requestImage(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	res, err := s.codec.Reveal(img.Pixels())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.log.WithFields(logrus.Fields{
		"name":      name,
		"outcome":   res.Outcome,
		"truncated": res.Truncated,
	}).Info("reveal")

	writeJSON(w, http.StatusOK, revealResponse{
		Outcome:   res.Outcome.String(),
		Text:      res.Plaintext,
		Message:   res.String(),
		Truncated: res.Truncated,
	})
}

// ── Key ──

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	_, ok := s.keys.Key()
	writeJSON(w, http.StatusOK, map[string]bool{"present": ok})
}

// ── Helpers ──

// requestImage resolves the image a hide or reveal request operates on: a
// previously uploaded "id" or an inline multipart "file". The returned image
// is always a private copy.
func (s *Server) requestImage(r *http.Request) (*imageio.Image, string, int, error) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, "", http.StatusBadRequest, fmt.Errorf("parse form: %w", err)
	}

	if id := r.FormValue("id"); id != "" {
		u, ok := s.images.get(id)
		if !ok {
			return nil, "", http.StatusNotFound, fmt.Errorf("image %s not found", id)
		}
		return imageio.FromImage(u.Image.NRGBA(), u.Image.Format), u.Name, http.StatusOK, nil
	}

	img, name, err := formImage(r)
	if err != nil {
		return nil, "", http.StatusBadRequest, err
	}
	return img, name, http.StatusOK, nil
}

func formImage(r *http.Request) (*imageio.Image, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("no file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	img, err := imageio.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return img, header.Filename, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Start()
}
