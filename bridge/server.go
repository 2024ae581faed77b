package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// commandTimeout bounds a single command issued over the bridge.
	commandTimeout = 30 * time.Second
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 * 1024
)

// Server exposes a Controller and a Hub over HTTP.
type Server struct {
	hub    *Hub
	ctrl   Controller
	router *mux.Router
	http   *http.Server

	upgrader websocket.Upgrader
}

// NewServer builds a server listening on addr.
func NewServer(addr string, hub *Hub, ctrl Controller) *Server {
	s := &Server{
		hub:    hub,
		ctrl:   ctrl,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/friends/{id:[0-9]+}/messages", s.handleMessages).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "ListenAndServe",
			"addr":     s.http.Addr,
		}).Info("Bridge listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// localOrigin accepts requests without an Origin header and browser
// requests from loopback pages only.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  s.ctrl.State().String(),
		"peers":  s.hub.Len(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	msgs, err := s.ctrl.LoadMessages(r.Context(), uint32(id), limit)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleWS",
			"error":    err.Error(),
		}).Warn("WebSocket upgrade failed")
		return
	}

	p := &peer{id: uuid.New(), conn: conn, send: make(chan []byte, sendBufferSize)}
	if !s.hub.join(p) {
		conn.Close()
		return
	}

	go s.writePump(p)
	go s.readPump(p)

	if snap, err := s.ctrl.Snapshot(r.Context()); err == nil {
		if frame, err := json.Marshal(Envelope{Type: "snapshot", Data: snap}); err == nil {
			s.hub.sendTo(p.id, frame)
		}
	}
}

func (s *Server) readPump(p *peer) {
	defer func() {
		s.hub.leave(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxFrameSize)

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"peer_id":  p.id,
					"error":    err.Error(),
				}).Warn("WebSocket read error")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.reply(p, Response{Type: ResponseType, Error: "malformed request: " + err.Error()})
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function":   "readPump",
			"peer_id":    p.id,
			"command":    req.Type,
			"request_id": req.ID,
		}).Debug("Command received")

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		resp := Execute(ctx, s.ctrl, req)
		cancel()
		s.reply(p, resp)
	}
}

func (s *Server) reply(p *peer, resp Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "reply",
			"peer_id":  p.id,
			"error":    err.Error(),
		}).Error("Failed to encode response")
		return
	}
	s.hub.sendTo(p.id, frame)
}

func (s *Server) writePump(p *peer) {
	defer p.conn.Close()
	for frame := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
