package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mossy-p/peerlobby/config"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/session"
	"github.com/mossy-p/peerlobby/internal/signaling"
	"github.com/mossy-p/peerlobby/internal/uibridge"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// participant is the shared wiring of both subcommands
type participant struct {
	log    *logrus.Logger
	relay  *signaling.Client
	bridge *uibridge.Bridge
	api    *webrtc.API
	ice    []webrtc.ICEServer
}

func newParticipant(cfg *Config) (*participant, error) {
	logger := logrus.New()
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ice, err := config.ParseICEServers(cfg.iceServers, cfg.stunURLs)
	if err != nil {
		return nil, err
	}

	return &participant{
		log:    logger,
		relay:  signaling.NewClient(cfg.relayURL, signaling.WithLogger(logger)),
		bridge: uibridge.New(logger),
		api:    peer.NewAPI(logger),
		ice:    ice,
	}, nil
}

// serveUI runs the bridge on addr until ctx ends. An empty addr disables it.
func (p *participant) serveUI(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.bridge,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		p.log.WithField("addr", addr).Info("UI bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.WithError(err).Error("UI bridge stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		p.bridge.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func runHost(ctx context.Context, cfg *Config) error {
	p, err := newParticipant(cfg)
	if err != nil {
		return err
	}
	defer p.relay.StopAll()

	host, err := session.NewHost(session.HostOptions{
		Name:       cfg.name,
		Relay:      p.relay,
		API:        p.api,
		ICEServers: p.ice,
		Logger:     p.log,
		Events:     p.bridge.Events(),
	})
	if err != nil {
		return err
	}
	p.bridge.Attach(uibridge.ForHost(host))

	roomID, err := host.StartHosting(ctx)
	if err != nil {
		return fmt.Errorf("start hosting: %w", err)
	}
	defer host.Destroy()

	p.serveUI(ctx, cfg.uiAddr)
	p.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"link":    models.ShareURL(cfg.shareBase, roomID, cfg.name),
	}).Info("Room ready, share the link to invite players")

	<-ctx.Done()
	p.log.Info("Shutting down")
	return nil
}

func runJoin(ctx context.Context, cfg *Config, roomID string) error {
	p, err := newParticipant(cfg)
	if err != nil {
		return err
	}
	defer p.relay.StopAll()

	client, err := session.NewClient(session.ClientOptions{
		Name:       cfg.name,
		Relay:      p.relay,
		API:        p.api,
		ICEServers: p.ice,
		Logger:     p.log,
		Events:     p.bridge.Events(),
	})
	if err != nil {
		return err
	}
	p.bridge.Attach(uibridge.ForClient(client))
	defer client.Destroy()

	p.serveUI(ctx, cfg.uiAddr)
	if err := client.ConnectToHost(roomID); err != nil {
		return fmt.Errorf("connect to host: %w", err)
	}

	<-ctx.Done()
	p.log.Info("Shutting down")
	return nil
}
