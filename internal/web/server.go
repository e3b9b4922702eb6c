// Package web provides an HTTP status and control server for the
// dewpoint-fan daemon.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/history"
	"github.com/sweeney/dewpoint-fan/internal/status"
)

// DefaultHistoryLimit is the number of records served when no limit is given.
const DefaultHistoryLimit = 100

// MaxHistoryLimit caps the limit query parameter.
const MaxHistoryLimit = 2000

// HistorySource provides stored records, newest first.
type HistorySource interface {
	Recent(ctx context.Context, n int) ([]history.Entry, error)
}

// Options wires optional collaborators into the server. Nil fields disable
// the matching routes.
type Options struct {
	History  HistorySource
	Metrics  http.Handler
	Commands chan<- control.Command
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistorySource
	commands   chan<- control.Command
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{
		tracker:  tracker,
		history:  opts.History,
		commands: opts.Commands,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if s.history != nil {
		r.HandleFunc("/history.json", s.handleHistoryJSON).Methods(http.MethodGet)
		r.HandleFunc("/history.csv", s.handleHistoryCSV).Methods(http.MethodGet)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if s.commands != nil {
		api := r.PathPrefix("/api").Subrouter()
		api.HandleFunc("/setpoint/advance", s.handleAdvance).Methods(http.MethodPost)
		api.HandleFunc("/time", s.handleSetTime).Methods(http.MethodPost)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Warn().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// HistoryJSON is the envelope served by /history.json.
type HistoryJSON struct {
	Records []HistoryRecordJSON `json:"records"`
}

// HistoryRecordJSON is one stored record.
type HistoryRecordJSON struct {
	ID          int64            `json:"id"`
	Local       string           `json:"local"`
	Indoor      status.ProbeJSON `json:"indoor"`
	Outdoor     status.ProbeJSON `json:"outdoor"`
	FanOn       bool             `json:"fan_on"`
	Setpoint    string           `json:"setpoint"`
	RunSeconds  uint16           `json:"run_seconds"`
	RestSeconds uint16           `json:"rest_seconds"`
	Verdict     string           `json:"verdict"`
}

func historyLimit(r *http.Request) (int, error) {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", q)
	}
	return min(n, MaxHistoryLimit), nil
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) ([]history.Entry, bool) {
	n, err := historyLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	entries, err := s.history.Recent(r.Context(), n)
	if err != nil {
		log.Error().Err(err).Msg("read history")
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return entries, true
}

func (s *Server) handleHistoryJSON(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.recent(w, r)
	if !ok {
		return
	}
	out := HistoryJSON{Records: make([]HistoryRecordJSON, 0, len(entries))}
	for _, e := range entries {
		out.Records = append(out.Records, HistoryRecordJSON{
			ID:          e.ID,
			Local:       e.Record.Local.String(),
			Indoor:      status.ProbeFrom(e.Record.Inner),
			Outdoor:     status.ProbeFrom(e.Record.Outer),
			FanOn:       e.Record.FanOn,
			Setpoint:    e.Record.Setpoint.String(),
			RunSeconds:  e.Record.RunSeconds,
			RestSeconds: e.Record.RestSeconds,
			Verdict:     e.Verdict.String(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleHistoryCSV serves records oldest first in the data log format.
func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.recent(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	io.WriteString(w, status.CSVHeader+"\n")
	for i := len(entries) - 1; i >= 0; i-- {
		io.WriteString(w, status.FormatRecord(entries[i].Record)+"\n")
	}
}

// fromBrowserForm reports whether r was posted by an HTML form.
func fromBrowserForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// submit queues cmd for the control loop without blocking. Form posts from
// the status page are sent back to it; API clients get 202.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd control.Command) {
	select {
	case s.commands <- cmd:
		log.Info().Str("command", cmd.Kind.String()).Msg("command queued from http")
		if fromBrowserForm(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "control loop busy", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, control.Command{Kind: control.CommandAdvanceSetpoint, Origin: "http"})
}

type setTimeRequest struct {
	Local string `json:"local"`
}

// handleSetTime accepts {"local": "..."} as JSON or a "local" form field.
func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var local string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req setTimeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		local = req.Local
	} else {
		local = r.FormValue("local")
	}

	t, err := control.ParseLocalTime(local)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.submit(w, r, control.Command{Kind: control.CommandSetLocalTime, Local: t, Origin: "http"})
}
