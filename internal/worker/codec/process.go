package codec

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// Result is what one video packet produces: the bytes to publish
// downstream, the bytes to hand the recorder (distinct in passthrough
// mode per spec.md I1), whether the published frame is a sync sample, and
// the packet's presentation timestamp in the input stream's timebase.
type Result struct {
	PublishData []byte
	RecordData  []byte
	Keyframe    bool
	PTS         int64
}

// ErrNoFrame signals the decoder needs more packets before it can emit a
// frame (EAGAIN from avcodec_receive_frame) — not an error condition.
var ErrNoFrame = errors.New("codec: no frame available yet")

// ProcessVideoPacket runs one packet through decode, filter, and the
// MJPEG encoder. In short-circuit mode the publish path reuses the raw
// input bytes and only the encoder output is recorded; otherwise both
// paths are the same encoded MJPEG packet, cloned so publish and record
// own independent buffers (spec.md I1: these must never alias).
func (p *Pipeline) ProcessVideoPacket(pkt *astiav.Packet) (*Result, error) {
	pts := pkt.Pts()
	keyframe := pkt.Flags().Has(astiav.PacketFlagKey)

	encoded, err := p.encodeMJPEG(pkt)
	if err != nil && !errors.Is(err, ErrNoFrame) {
		return nil, err
	}

	result := &Result{PTS: pts, Keyframe: keyframe}

	if p.skipTranscode {
		result.PublishData = cloneBytes(pkt.Data())
		if encoded != nil {
			result.RecordData = encoded
		}
		return result, nil
	}

	if encoded == nil {
		return nil, ErrNoFrame
	}
	result.PublishData = encoded
	result.RecordData = cloneBytes(encoded)
	return result, nil
}

// encodeMJPEG decodes one input packet, runs it through the scale/format
// filter graph, and feeds the result to the MJPEG encoder, returning the
// encoded bytes (nil, ErrNoFrame if the pipeline needs more input before
// it can produce output — normal during decoder/encoder warm-up).
func (p *Pipeline) encodeMJPEG(pkt *astiav.Packet) ([]byte, error) {
	if err := p.videoDecoder.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("codec: send packet to decoder: %w", err)
	}

	if err := p.videoDecoder.ReceiveFrame(p.decodedFrame); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("codec: receive decoded frame: %w", err)
	}
	defer p.decodedFrame.Unref()

	if err := p.filterSrc.BuffersrcAddFrame(p.decodedFrame, astiav.NewBuffersrcFlags()); err != nil {
		return nil, fmt.Errorf("codec: feed filter graph: %w", err)
	}

	if err := p.filterSink.BuffersinkGetFrame(p.filteredFrame, astiav.NewBuffersinkFlags()); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("codec: pull filtered frame: %w", err)
	}
	defer p.filteredFrame.Unref()

	if err := p.mjpegEncoder.SendFrame(p.filteredFrame); err != nil {
		return nil, fmt.Errorf("codec: send frame to encoder: %w", err)
	}

	if err := p.mjpegEncoder.ReceivePacket(p.encodedPacket); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("codec: receive encoded packet: %w", err)
	}
	defer p.encodedPacket.Unref()

	return cloneBytes(p.encodedPacket.Data()), nil
}

func cloneBytes(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
