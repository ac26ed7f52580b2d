// Package peertest builds WebRTC APIs on a virtual network for tests.
package peertest

import (
	"fmt"
	"testing"

	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// APIs starts a virtual LAN with n hosts and returns one pion API per host.
// The router is stopped when the test ends.
func APIs(t testing.TB, n int) []*webrtc.API {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	factory := peer.LoggerFactory(logger)

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: factory,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	nets := make([]*vnet.Net, n)
	for i := range nets {
		nets[i], err = vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{fmt.Sprintf("10.0.0.%d", i+1)}})
		if err != nil {
			t.Fatalf("new net %d: %v", i, err)
		}
		if err := router.AddNet(nets[i]); err != nil {
			t.Fatalf("add net %d: %v", i, err)
		}
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}
	t.Cleanup(func() {
		_ = router.Stop()
	})

	apis := make([]*webrtc.API, n)
	for i, nw := range nets {
		se := webrtc.SettingEngine{}
		se.SetNet(nw)
		se.LoggerFactory = factory

		mediaEngine := &webrtc.MediaEngine{}
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			t.Fatalf("register codecs: %v", err)
		}
		apis[i] = webrtc.NewAPI(
			webrtc.WithSettingEngine(se),
			webrtc.WithMediaEngine(mediaEngine),
		)
	}
	return apis
}
