package wamp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// Server runs the WAMP router through which devices exchange heartbeats, data
// and envelopes. It is the broker of the network backend.
type Server struct {
	address    string
	router     router.Router
	httpServer *http.Server
	useTLS     bool
	logger     *logrus.Entry
}

// NewServer instantiates a new Server which can be run at a specified address.
// When certFile and keyFile are empty the server speaks plain ws://.
func NewServer(address string,
	realm string,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*Server, error) {

	nxr, err := NewRouter(realm, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	useTLS := certFile != "" || keyFile != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, fmt.Errorf("error loading X509 key pair: %s", err)
		}
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	res := &Server{
		address:    address,
		router:     nxr,
		httpServer: httpServer,
		useTLS:     useTLS,
		logger:     logger,
	}

	return res, nil
}

// NewRouter creates a nexus router with a single realm open to anonymous
// clients. Local transports can connect to it directly.
func NewRouter(realm string, logger *logrus.Entry) (router.Router, error) {
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	return router.NewRouter(routerConfig, logger)
}

// Run starts the WAMP websocket server. It blocks until Shutdown.
func (s *Server) Run() error {
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"tls":     s.useTLS,
	}).Info("Starting WAMP router")

	var err error
	if s.useTLS {
		// certificates are already loaded in the TLSConfig
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}

	return nil
}

// Shutdown stops the websocket server, and the wamp router
func (s *Server) Shutdown() {
	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}
}

// Router returns the underlying nexus router.
func (s *Server) Router() router.Router {
	return s.router
}

// Addr returns the address of the server
func (s *Server) Addr() string {
	return s.address
}
