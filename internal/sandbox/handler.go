package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opd-ai/meshcall/call"
	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// errBadRequest marks a request body the handler could not use.
var errBadRequest = errors.New("bad request")

// Handler serves the sandbox HTTP API.
type Handler struct {
	Sandbox *Sandbox
}

// NewHandler creates a handler over sb.
func NewHandler(sb *Sandbox) *Handler {
	return &Handler{Sandbox: sb}
}

type addNodeRequest struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
}

type startCallRequest struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients"`
	AudioOnly  bool     `json:"audioOnly"`
	// Dial defaults to true; false joins the room without ringing anyone.
	Dial       *bool    `json:"dial,omitempty"`
}

type acceptCallRequest struct {
	AudioOnly bool `json:"audioOnly"`
}

type inviteRequest struct {
	Recipients []string `json:"recipients"`
}

type audioRequest struct {
	// Packets are base64 Opus packets, one 20 ms SILK frame each.
	Packets [][]byte `json:"packets"`
}

type audioResponse struct {
	Samples int `json:"samples"`
}

type deviceRequest struct {
	Enabled bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the chi router.
func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", h.ListNodes)
		r.Post("/", h.AddNode)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetNode)
			r.Delete("/", h.RemoveNode)
			r.Post("/calls", h.StartCall)
			r.Delete("/calls", h.LeaveCall)
			r.Post("/calls/accept", h.AcceptCall)
			r.Post("/calls/invite", h.Invite)
			r.Put("/devices/{device}", h.SetDevice)
			r.Post("/audio", h.FeedAudio)
		})
	})

	return r
}

// ListNodes returns every node identity.
func (h *Handler) ListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Sandbox.Identities())
}

// AddNode registers a node.
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Identity == "" {
		writeError(w, fmt.Errorf("%w: identity is required", errBadRequest))
		return
	}
	node, err := h.Sandbox.AddNode(r.Context(), req.Identity, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node.Status())
}

// GetNode returns a node's status.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.Sandbox.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node.Status())
}

// RemoveNode closes a node.
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	if err := h.Sandbox.RemoveNode(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartCall prepares and starts a call from the node.
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	node, err := h.Sandbox.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req startCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Channel == "" {
		writeError(w, fmt.Errorf("%w: channel is required", errBadRequest))
		return
	}
	dial := req.Dial == nil || *req.Dial

	c := node.Controller
	c.PrepareCall(req.Recipients, req.Channel, req.AudioOnly)
	if err := c.StartCall(h.callContext(r), dial); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node.Status())
}

// AcceptCall answers the node's pending call.
func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	node, err := h.Sandbox.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req acceptCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := node.Controller.AcceptCall(h.callContext(r), req.AudioOnly); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node.Status())
}

// Invite rings more recipients for the node's call.
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	node, err := h.Sandbox.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Recipients) == 0 {
		writeError(w, fmt.Errorf("%w: recipients are required", errBadRequest))
		return
	}
	if err := node.Controller.InviteToCall(h.callContext(r), req.Recipients); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, node.Status())
}

// LeaveCall ends the node's call and posts the end message.
func (h *Handler) LeaveCall(w http.ResponseWriter, r *http.Request) {
	node, err := h.Sandbox.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	node.Controller.LeaveCall(h.callContext(r), true)
	writeJSON(w, http.StatusOK, node.Status())
}

// SetDevice sets one device intent.
func (h *Handler) SetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req deviceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Sandbox.SetDevice(h.callContext(r), id, chi.URLParam(r, "device"), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	node, err := h.Sandbox.Node(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node.Status())
}

// FeedAudio plays Opus packets into the node's microphone.
func (h *Handler) FeedAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Packets) == 0 {
		writeError(w, fmt.Errorf("%w: packets are required", errBadRequest))
		return
	}
	n, err := h.Sandbox.FeedAudio(r.Context(), chi.URLParam(r, "id"), req.Packets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audioResponse{Samples: n})
}

// callContext detaches call work from the request: rooms and endpoints
// outlive the HTTP exchange that created them.
func (h *Handler) callContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, ErrNodeExists), errors.Is(err, transport.ErrIDTaken):
		return http.StatusConflict
	case errors.Is(err, call.ErrNoPendingCall), errors.Is(err, call.ErrNotInCall):
		return http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, ErrUnknownDevice), errors.Is(err, ErrBadAudio),
		errors.Is(err, call.ErrNotPrepared), errors.Is(err, call.ErrMissingCollaborator):
		return http.StatusBadRequest
	case errors.Is(err, call.ErrScreenCapture):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"function":   "sandbox.logRequests",
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
		}).Debug("Request served")
	})
}
