package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"qmaze/reinforcement"
	"qmaze/server/cell_views"
	"qmaze/server/fastview"
	"qmaze/server/root_view"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Config configures the live view server.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "localhost:8080"

// Time allowed for in-flight requests to complete on shutdown.
const shutdownGracePeriod = 5 * time.Second

// Server serves a page of views on the training progress, updated live over websocket to
// any number of clients, and the training metrics. It only ever receives snapshots; it
// never touches the Q-table being trained.
type Server struct {
	addr     string
	rootView *root_view.RootView
	initial  cell_views.Grid
	hub      *hub
	log      logrus.FieldLogger
	router   *mux.Router
}

// NewServer initializes all of the views. Snapshots received on @snapshots are published
// to clients until @ctx is cancelled; @initial is rendered for the first page load.
func NewServer(
	ctx context.Context,
	addr string,
	layout cell_views.Layout,
	initial reinforcement.Snapshot,
	snapshots <-chan reinforcement.Snapshot,
	metrics *Metrics,
	log logrus.FieldLogger,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, layout, snapshots)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	if addr == "" {
		addr = DefaultAddr
	}
	server := &Server{
		addr:     addr,
		rootView: rootView,
		initial:  cell_views.Convert(layout, initial),
		hub:      newHub(),
		log:      log,
	}
	go server.hub.run(ctx.Done(), rootView.Updates())

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	server.router = router

	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until @ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		server.log.WithField("addr", server.addr).Info("Serving views.")
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	id, updates := server.hub.subscribe()
	defer server.hub.unsubscribe(id)

	log := server.log.WithField("client", id)
	cli, err := fastview.NewClient(updates, w, r)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed.")
		return
	}

	log.Debug("Client connected.")
	if err := cli.Sync(r.Context()); err != nil {
		log.WithError(err).Warn("Client sync failed.")
		return
	}
	log.Debug("Client disconnected.")
}

// serveIndex serves the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	var page bytes.Buffer
	if err := renderTemplate(&page, server.rootView, server.initial); err != nil {
		server.log.WithError(err).Error("Render index failed.")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = page.WriteTo(w)
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
