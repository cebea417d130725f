package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"popreveal/internal/game"
	"popreveal/internal/round"
	"popreveal/internal/viewmodel"
	"popreveal/views/pages"
)

const title = "Pop Reveal"

type HomeHandler struct {
	store *game.Store
	log   *zap.Logger
}

func NewHomeHandler(store *game.Store, log *zap.Logger) *HomeHandler {
	return &HomeHandler{store: store, log: log}
}

func (h *HomeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Post("/sessions", h.createSession)
}

func (h *HomeHandler) home(w http.ResponseWriter, r *http.Request) {
	catalog := h.store.Catalog()
	render(w, r, pages.HomePage(viewmodel.HomePage{
		Title:  title,
		Themes: viewmodel.NewThemeOptions(catalog.Themes(), catalog.Default().ID),
	}))
}

// createSession makes a session and, when a theme was picked, starts its
// first round straight away.
func (h *HomeHandler) createSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}
	sess, err := h.store.CreateSession()
	if err != nil {
		h.log.Error("create session", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not create session")
		return
	}
	if theme := strings.TrimSpace(r.FormValue("theme")); theme != "" {
		if err := h.store.SelectTheme(sess.ID, theme); err != nil {
			h.store.Delete(sess.ID)
			status := http.StatusInternalServerError
			if errors.Is(err, round.ErrUnknownTheme) {
				status = http.StatusBadRequest
			}
			writeError(w, r, status, err.Error())
			return
		}
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID, "url": "/session/" + sess.ID})
		return
	}
	http.Redirect(w, r, "/session/"+sess.ID, http.StatusSeeOther)
}
