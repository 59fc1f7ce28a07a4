// Package service exposes a geocast device over HTTP.
//
// The endpoints are:
//
//  GET  /stats      node statistics
//  GET  /state      the device state (online, source, location)
//  GET  /neighbors  the neighbour set of the last round
//  GET  /gradients  the distance to every known gradient source
//  GET  /pending    the messages waiting to be forwarded
//  GET  /messages   the delivered messages, optionally ?since=<index>
//  POST /messages   submit a message: {"text": ..., "budget": ..., "spreading_time": ...}
package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/node"
	"github.com/mosaicnetworks/geocast/src/store"
	"github.com/sirupsen/logrus"
)

// SubmitRequest is the body of POST /messages. Budget and SpreadingTime fall
// back to the service defaults when zero. SpreadingTime is in seconds.
type SubmitRequest struct {
	Text          string  `json:"text"`
	Budget        float64 `json:"budget"`
	SpreadingTime float64 `json:"spreading_time"`
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	store       *store.InmemStore
	mux         *http.ServeMux

	defaultBudget    float64
	defaultSpreading time.Duration

	logger *logrus.Entry
}

// NewService ...
func NewService(bindAddress string,
	n *node.Node,
	s *store.InmemStore,
	defaultBudget float64,
	defaultSpreading time.Duration,
	logger *logrus.Entry) *Service {

	service := Service{
		bindAddress:      bindAddress,
		node:             n,
		store:            s,
		mux:              http.NewServeMux(),
		defaultBudget:    defaultBudget,
		defaultSpreading: defaultSpreading,
		logger:           logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering geocast API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/state", s.makeHandler(s.GetState))
	s.mux.HandleFunc("/neighbors", s.makeHandler(s.GetNeighbors))
	s.mux.HandleFunc("/gradients", s.makeHandler(s.GetGradients))
	s.mux.HandleFunc("/pending", s.makeHandler(s.GetPending))
	s.mux.HandleFunc("/messages", s.makeHandler(s.Messages))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving geocast API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetState ...
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.State())
}

// GetNeighbors ...
func (s *Service) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Neighbors())
}

// GetGradients ...
func (s *Service) GetGradients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Gradients())
}

// GetPending ...
func (s *Service) GetPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Pending())
}

// Messages dispatches /messages on the request method.
func (s *Service) Messages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.GetMessages(w, r)
	case http.MethodPost:
		s.PostMessage(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetMessages returns the delivered messages after the index given by the
// since parameter, or all the messages still in the store.
func (s *Service) GetMessages(w http.ResponseWriter, r *http.Request) {
	since := -1

	if param := r.URL.Query().Get("since"); param != "" {
		v, err := strconv.Atoi(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing since parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		since = v
	}

	msgs, err := s.store.Since(since)
	if err != nil {
		status := http.StatusInternalServerError
		if common.IsStore(err, common.TooLate) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, msgs)
}

// PostMessage submits a message and raises the send trigger.
func (s *Service) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.WithError(err).Error("Decoding message")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	budget := req.Budget
	if budget <= 0 {
		budget = s.defaultBudget
	}

	spreading := time.Duration(req.SpreadingTime * float64(time.Second))
	if spreading <= 0 {
		spreading = s.defaultSpreading
	}

	msg, err := s.node.SubmitMessage(req.Text, budget, spreading)
	if err != nil {
		s.logger.WithError(err).Error("Submitting message")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}
