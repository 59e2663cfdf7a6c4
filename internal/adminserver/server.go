// Package adminserver exposes a read-only HTTP+WS surface over lineage and
// liveness data (spec.md §6's Admin API addition). JWT bearer auth is
// adapted from the teacher's internal/server/auth.go static-secret pattern;
// the websocket fan-out is adapted from
// internal/services/socket/socket.go's Client send-channel/writePump shape,
// narrowed to a single broadcast-only feed since there is no per-user
// subscription model for lineage events.
package adminserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fileingest/internal/dbexec"
	"fileingest/internal/lineage"
)

// Claims is the single static-secret service token's claim set, mirroring
// the teacher's Claims shape without a per-user subject.
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// IssueToken signs a service token for operational tooling to authenticate
// with. Mirrors the teacher's createToken, generalized to a named service
// instead of a user id.
func IssueToken(secret []byte, service string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func validateToken(secret []byte, tokenString string) error {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("cannot parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Server serves the admin surface. Construct with New, wire lineage events
// in with Publish, then call ListenAndServe.
type Server struct {
	db     dbexec.Querier
	secret []byte
	log    *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// New builds a Server. secret authenticates every request except /healthz;
// an empty secret disables authentication.
func New(db dbexec.Querier, secret []byte, log *zap.Logger) *Server {
	return &Server{
		db:      db,
		secret:  secret,
		log:     log,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish fans a lineage Event out to every connected websocket client,
// dropping it for clients whose send buffer is full rather than blocking the
// pipeline.
func (s *Server) Publish(evt lineage.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- body:
		default:
			s.log.Warn("dropping lineage event for slow admin client")
		}
	}
}

// Mux builds the HTTP handler: /healthz is unauthenticated, everything else
// requires a valid bearer token unless the secret is empty.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/lineage", s.auth(http.HandlerFunc(s.handleLineage)))
	mux.Handle("/ws/lineage", s.auth(http.HandlerFunc(s.handleWS)))
	return mux
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := validateToken(s.secret, token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// lineageRow is the subset of file_load_log surfaced to the admin API.
type lineageRow struct {
	ID             int64      `json:"id"`
	SourceFilename string     `json:"source_filename"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	Success        *bool      `json:"success"`
	ErrorType      *string    `json:"error_type"`
	OutcomeCat     *string    `json:"outcome_category"`
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	ctx := r.Context()

	var rows dbexec.Rows
	var err error
	if filename != "" {
		rows, err = s.db.Query(ctx,
			`SELECT id, source_filename, started_at, ended_at, success, error_type, outcome_category
			 FROM file_load_log WHERE source_filename = $1 ORDER BY started_at DESC LIMIT 100`, filename)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT id, source_filename, started_at, ended_at, success, error_type, outcome_category
			 FROM file_load_log ORDER BY started_at DESC LIMIT 100`)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var out []lineageRow
	for rows.Next() {
		var row lineageRow
		if err := rows.Scan(&row.ID, &row.SourceFilename, &row.StartedAt, &row.EndedAt, &row.Success, &row.ErrorType, &row.OutcomeCat); err != nil {
			http.Error(w, fmt.Sprintf("scan failed: %v", err), http.StatusInternalServerError)
			return
		}
		out = append(out, row)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{ws: conn, send: make(chan []byte, 64)}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) writePump(c *client) {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump drains the client's inbound frames only to detect disconnect;
// this feed is broadcast-only, so any inbound message is ignored.
func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			delete(s.clients, c)
			close(c.send)
		}
		s.mu.Unlock()
	}()
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// ListenAndServe starts the HTTP server, blocking until ctx is cancelled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
