//go:build !linux

package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/core"
)

// buildPeer creates a receive-only PeerConnection on non-Linux platforms.
// Camera/mic capture via pion/mediadevices needs platform drivers that are
// only wired for Linux here; the remote stream still arrives.
func buildPeer(stunServers []string) (*webrtc.PeerConnection, core.MediaTrack, func(), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(peerConfiguration(stunServers))
	if err != nil {
		return nil, nil, nil, err
	}

	if err := addRecvTransceivers(pc); err != nil {
		pc.Close()
		return nil, nil, nil, err
	}

	log.Info().Str("module", "adapters.media").Msg("receive-only session (no capture on this platform)")
	return pc, nil, nil, nil
}
