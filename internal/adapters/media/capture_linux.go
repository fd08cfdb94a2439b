//go:build linux

package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/core"
)

// buildPeer creates the PeerConnection with VP8+Opus codecs and captures
// camera/microphone via pion/mediadevices (V4L2 + malgo). Capture failure is
// not fatal: the session degrades to receive-only so the remote stream still
// arrives. Local capture starts here, once per session; the returned stop
// function releases it.
func buildPeer(stunServers []string) (*webrtc.PeerConnection, core.MediaTrack, func(), error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

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

	// Receive m-lines for the remote participant's stream. Capture tracks
	// get their own sendrecv m-lines via AddTrack below.
	if err := addRecvTransceivers(pc); err != nil {
		pc.Close()
		return nil, nil, nil, err
	}

	// GetUserMedia fails as a unit if either device can't be opened; fall
	// back so a busy microphone doesn't lose the camera and vice versa.
	type attempt struct {
		video, audio bool
		label        string
	}
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw formats only: MJPEG camera nodes can hand the VP8
				// encoder malformed frames.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.media").
				Str("attempt", a.label).Msg("capture attempt failed")
			continue
		}

		tracks := stream.GetTracks()
		var local core.MediaTrack
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Warn().Err(err).Str("module", "adapters.media").Msg("local track ended")
				}
			})
			if _, err := pc.AddTrack(track); err != nil {
				log.Error().Err(err).Str("module", "adapters.media").Msg("add local track")
				continue
			}
			if track.Kind() == webrtc.RTPCodecTypeVideo {
				local = localTrack{t: track}
			}
		}

		log.Info().Str("module", "adapters.media").
			Str("attempt", a.label).Int("tracks", len(tracks)).Msg("local media captured")
		stop := func() {
			for _, t := range tracks {
				t.Close()
			}
		}
		return pc, local, stop, nil
	}

	log.Warn().Str("module", "adapters.media").Msg("no capture device, receive-only session")
	return pc, nil, nil, nil
}

type localTrack struct {
	t mediadevices.Track
}

func (l localTrack) ID() string   { return l.t.ID() }
func (l localTrack) Kind() string { return l.t.Kind().String() }
