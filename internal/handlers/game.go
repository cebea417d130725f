package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"popreveal/internal/game"
	"popreveal/internal/round"
	"popreveal/internal/viewmodel"
	"popreveal/pkg/realtime"
	"popreveal/views/components"
	"popreveal/views/pages"
)

// EventControls carries the rendered controls fragment on the stream.
const EventControls = "controls"

const keepAliveInterval = 25 * time.Second

type GameHandler struct {
	store   *game.Store
	log     *zap.Logger
	baseURL string
	timeout time.Duration
}

// NewGameHandler serves the per-session routes. timeout bounds every route
// except the stream and the websocket.
func NewGameHandler(store *game.Store, log *zap.Logger, baseURL string, timeout time.Duration) *GameHandler {
	return &GameHandler{store: store, log: log, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Route("/session/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.timeout > 0 {
				r.Use(middleware.Timeout(h.timeout))
			}
			r.Get("/", h.sessionPage)
			r.Get("/state", h.state)
			r.Get("/mask.png", h.mask)
			r.Get("/preview.png", h.preview)
			r.Post("/themes", h.action((*game.Store).OpenThemes))
			r.Post("/start", h.action((*game.Store).Start))
			r.Post("/restart", h.action((*game.Store).Restart))
			r.Post("/quit", h.action((*game.Store).Quit))
			r.Post("/skip", h.action((*game.Store).SkipViewing))
			r.Post("/theme", h.selectTheme)
			r.Post("/viewport", h.viewport)
			r.Post("/pop", h.pop)
		})
		r.Get("/stream", h.stream)
		r.Get("/ws", h.ws)
	})
}

func (h *GameHandler) sessionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.store.Snapshot(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	th := viewmodel.NewThemeOption(snap.Theme)
	data := viewmodel.GamePage{
		Title:      title + " · " + snap.Theme.Name,
		SessionID:  id,
		ShareURL:   h.sessionURL(r, id),
		Theme:      th,
		Themes:     viewmodel.NewThemeOptions(h.store.Catalog().Themes(), snap.Theme.ID),
		Reveal:     string(snap.Reveal),
		SceneStyle: viewmodel.SceneStyle(snap.Theme.Background, snap.HUD.Levels, snap.Reveal == round.RevealScore),
		MaskURL:    "/session/" + id + "/mask.png",
		Controls:   viewmodel.NewControls(id, snap.HUD),
	}
	render(w, r, pages.GamePage(data))
}

func (h *GameHandler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snap)
}

// mask serves the reveal mask as a PNG. ?w= rescales it; the revision hash
// doubles as the ETag so unchanged masks cost a 304.
func (h *GameHandler) mask(w http.ResponseWriter, r *http.Request) {
	h.servePNG(w, r, "mask", h.store.MaskPNG)
}

func (h *GameHandler) preview(w http.ResponseWriter, r *http.Request) {
	h.servePNG(w, r, "preview", h.store.PreviewPNG)
}

// servePNG answers an image request, revalidated by revision and width.
func (h *GameHandler) servePNG(w http.ResponseWriter, r *http.Request, kind string, encode func(string, int) ([]byte, uint64, error)) {
	width, _ := strconv.Atoi(r.URL.Query().Get("w"))
	png, rev, err := encode(chi.URLParam(r, "id"), width)
	if errors.Is(err, game.ErrSessionNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Error("encode image", zap.String("kind", kind), zap.Error(err))
		http.Error(w, "failed to encode "+kind, http.StatusInternalServerError)
		return
	}
	etag := `"` + kind[:1] + game.MaskETag(rev) + "-" + strconv.Itoa(width) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

func (h *GameHandler) action(op func(*game.Store, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, r, chi.URLParam(r, "id"), op(h.store, chi.URLParam(r, "id")))
	}
}

func (h *GameHandler) selectTheme(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Theme string `json:"theme"`
	}
	if err := decodeInput(r, &body, func() { body.Theme = r.FormValue("theme") }); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, r, id, h.store.SelectTheme(id, strings.TrimSpace(body.Theme)))
}

func (h *GameHandler) viewport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	var formErr error
	err := decodeInput(r, &body, func() {
		var herr error
		body.Width, formErr = strconv.ParseFloat(r.FormValue("width"), 64)
		body.Height, herr = strconv.ParseFloat(r.FormValue("height"), 64)
		formErr = errors.Join(formErr, herr)
	})
	if err != nil || formErr != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, r, id, h.store.Resize(id, body.Width, body.Height))
}

func (h *GameHandler) pop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeInput(r, &body, func() { body.ID = r.FormValue("id") }); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	res, err := h.store.Pop(id, body.ID)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// respond answers an action: the snapshot HUD for the shell script, a
// redirect back to the page for plain forms.
func (h *GameHandler) respond(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.log.Error("session action", zap.String("session", id), zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	if !wantsJSON(r) {
		http.Redirect(w, r, "/session/"+id, http.StatusSeeOther)
		return
	}
	snap, err := h.store.Snapshot(id)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.HUD)
}

func (h *GameHandler) stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hub, ok := h.store.Broadcaster(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	sendControls := func() bool {
		snap, err := h.store.Snapshot(id)
		if err != nil {
			return false
		}
		writeSSE(w, EventControls, renderToString(r, components.Controls(viewmodel.NewControls(id, snap.HUD))))
		return true
	}

	if snap, err := h.store.Snapshot(id); err == nil {
		b, _ := json.Marshal(snap)
		writeSSE(w, game.EventState, string(b))
	}
	sendControls()
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub:
			if !open {
				return
			}
			writeSSE(w, event.Name, event.Data)
			if rendersControls(event) && !sendControls() {
				flusher.Flush()
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

func rendersControls(e realtime.Event) bool {
	switch e.Name {
	case game.EventState, game.EventFeedback:
		return true
	}
	return false
}

func (h *GameHandler) sessionURL(r *http.Request, id string) string {
	if h.baseURL != "" {
		return h.baseURL + "/session/" + id
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/session/" + id
}

// decodeInput reads a JSON body into v, or runs fromForm for form posts.
func decodeInput(r *http.Request, v any, fromForm func()) error {
	if isJSONBody(r) {
		return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16)).Decode(v)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	fromForm()
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, round.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, round.ErrUnknownTheme), errors.Is(err, game.ErrInvalidViewport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
