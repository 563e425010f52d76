package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/status"
	"github.com/sweeney/doorbell/internal/subscription"
)

const maxBodyBytes = 16 << 10

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.deps.Tracker.Snapshot()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVAPID(w http.ResponseWriter, r *http.Request) {
	if s.deps.VAPIDPublicKey == "" {
		writeError(w, http.StatusNotFound, "Push notifications are disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.deps.VAPIDPublicKey})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := readSubscription(w, r)
	if !ok {
		return
	}

	err := s.deps.Store.Create(r.Context(), sub)
	switch {
	case errors.Is(err, subscription.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "Subscription already exists")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	log.WithField("endpoint", sub.Endpoint).Info("subscription created")
	s.refreshSubscribers(r.Context())
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := readSubscription(w, r)
	if !ok {
		return
	}

	n, err := s.deps.Store.Delete(r.Context(), sub)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	log.WithField("endpoint", sub.Endpoint).Info("subscription removed")
	s.refreshSubscribers(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleMockButton injects a sample: "1" presses the button, "0" releases it.
func (s *Server) handleMockButton(w http.ResponseWriter, r *http.Request) {
	var pressed bool
	switch chi.URLParam(r, "value") {
	case "1":
		pressed = true
	case "0":
		pressed = false
	default:
		writeError(w, http.StatusBadRequest, "Button value must be 0 or 1")
		return
	}

	if err := s.deps.Mock(pressed); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshSubscribers(ctx context.Context) {
	subs, err := s.deps.Store.List(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to count subscriptions")
		return
	}
	s.deps.Tracker.SetSubscribers(len(subs))
}

func readSubscription(w http.ResponseWriter, r *http.Request) (subscription.Subscription, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return subscription.Subscription{}, false
	}
	sub, err := subscription.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return subscription.Subscription{}, false
	}
	return sub, true
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.WithError(err).WithFields(log.Fields{
		"path":       r.URL.Path,
		"request_id": middlewareRequestID(r),
	}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "Something went wrong")
}
