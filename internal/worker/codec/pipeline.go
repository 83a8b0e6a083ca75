// Package codec owns every native libav* resource for one stream run:
// the demuxer, the video (and reserved audio) decoder, the scale/convert
// filter graph, and the MJPEG encoder. Built on go-astiav, the Go
// binding whose explicit Alloc/Free lifecycle matches the ownership
// model spec.md demands (every decoded Frame and cloned Packet is freed
// exactly once, by whichever owner took it last).
package codec

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

const (
	mjpegBitrate    = 2_000_000
	audioSampleRate = 48000
	audioFrameSize  = 1024
)

// Pipeline owns one run's worth of native contexts. Never shared across
// goroutines; the stream driver is its only caller.
type Pipeline struct {
	formatCtx *astiav.FormatContext

	videoStream *astiav.Stream
	audioStream *astiav.Stream // nil if the input has no audio

	videoDecoder *astiav.CodecContext
	audioDecoder *astiav.CodecContext // constructed, never pumped (spec.md §9)

	// audioConfig is the AAC AudioSpecificConfig the reserved audio path
	// would publish if the audio pipeline were ever wired to output; kept
	// so the configuration surface (spec.md §9) stays populated even
	// though nothing currently reads it downstream.
	audioConfig *mpeg4audio.AudioSpecificConfig

	filterGraph      *astiav.FilterGraph
	filterSrc        *astiav.FilterContext
	filterSink       *astiav.FilterContext
	audioFilterGraph *astiav.FilterGraph // reserved, constructed, unwired

	mjpegEncoder *astiav.CodecContext

	skipTranscode bool
	outputWidth   int
	outputHeight  int

	decodedFrame  *astiav.Frame
	filteredFrame *astiav.Frame
	encodedPacket *astiav.Packet
}

// Open opens the input, probes streams, computes output dimensions, and
// builds the filter graph and encoder. Returns the identity message
// published once as the first downstream message for this run.
func Open(cfg core.StreamConfig) (*Pipeline, *core.CodecIdentity, error) {
	formatCtx := astiav.AllocFormatContext()
	if formatCtx == nil {
		return nil, nil, fmt.Errorf("codec: alloc format context failed")
	}

	var opts *astiav.Dictionary
	if strings.HasPrefix(cfg.URI, "rtsp://") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		if err := opts.Set("rtsp_transport", "tcp", 0); err != nil {
			formatCtx.Free()
			return nil, nil, fmt.Errorf("codec: set rtsp_transport: %w", err)
		}
	}

	if err := formatCtx.OpenInput(cfg.URI, nil, opts); err != nil {
		formatCtx.Free()
		return nil, nil, fmt.Errorf("codec: open input %q: %w", cfg.URI, err)
	}
	if err := formatCtx.FindStreamInfo(nil); err != nil {
		formatCtx.CloseInput()
		return nil, nil, fmt.Errorf("codec: find stream info: %w", err)
	}

	p := &Pipeline{formatCtx: formatCtx}

	for _, s := range formatCtx.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if p.videoStream == nil {
				p.videoStream = s
			}
		case astiav.MediaTypeAudio:
			if p.audioStream == nil {
				p.audioStream = s
			}
		}
	}
	if p.videoStream == nil {
		p.Close()
		return nil, nil, fmt.Errorf("codec: no video stream in %q", cfg.URI)
	}

	if err := p.openVideoDecoder(); err != nil {
		p.Close()
		return nil, nil, err
	}
	if p.audioStream != nil {
		if err := p.openAudioDecoder(); err != nil {
			p.Close()
			return nil, nil, err
		}
	}

	inParams := p.videoStream.CodecParameters()
	outWidth, outHeight := OutputDimensions(inParams.Width(), inParams.Height())
	p.outputWidth, p.outputHeight = outWidth, outHeight
	p.skipTranscode = ShouldSkipTranscode(inParams.CodecID(), p.videoDecoder.PixelFormat())

	if err := p.buildFilterGraph(outWidth, outHeight); err != nil {
		p.Close()
		return nil, nil, err
	}
	p.buildReservedAudioFilterGraph()

	if err := p.openMJPEGEncoder(outWidth, outHeight); err != nil {
		p.Close()
		return nil, nil, err
	}

	p.decodedFrame = astiav.AllocFrame()
	p.filteredFrame = astiav.AllocFrame()
	p.encodedPacket = astiav.AllocPacket()

	identity := &core.CodecIdentity{
		MimeType:    "image/jpeg",
		VideoCodec:  "mjpeg",
		CodecString: "mjpeg",
		FullCodec:   "image/jpeg; codecs=mjpeg",
		Width:       outWidth,
		Height:      outHeight,
		HasAudio:    p.audioStream != nil,
	}
	if identity.HasAudio {
		aac := "mp4a.40.2"
		identity.AudioCodec = &aac
	}

	return p, identity, nil
}

func (p *Pipeline) openVideoDecoder() error {
	params := p.videoStream.CodecParameters()
	dec := astiav.FindDecoder(params.CodecID())
	if dec == nil {
		return fmt.Errorf("codec: no decoder for %s", params.CodecID())
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return fmt.Errorf("codec: alloc video decoder context failed")
	}
	if err := params.ToCodecContext(ctx); err != nil {
		return fmt.Errorf("codec: copy video params: %w", err)
	}
	ctx.SetTimeBase(p.videoStream.TimeBase())
	if err := ctx.Open(dec, nil); err != nil {
		return fmt.Errorf("codec: open video decoder: %w", err)
	}
	p.videoDecoder = ctx
	return nil
}

// openAudioDecoder builds the audio decode context spec.md §4.1/§9
// reserve for a future re-encode path: constructed and opened, but never
// fed a packet by the driver loop.
func (p *Pipeline) openAudioDecoder() error {
	params := p.audioStream.CodecParameters()
	dec := astiav.FindDecoder(params.CodecID())
	if dec == nil {
		// Non-fatal: audio is optional and unpublished regardless.
		return nil
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return nil
	}
	if err := params.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil
	}
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return nil
	}
	p.audioDecoder = ctx
	p.audioConfig = &mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   audioSampleRate,
		ChannelCount: 2,
	}
	return nil
}

func (p *Pipeline) buildFilterGraph(outWidth, outHeight int) error {
	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return fmt.Errorf("codec: alloc filter graph failed")
	}

	buffersrc := astiav.FindFilterByName("buffer")
	buffersink := astiav.FindFilterByName("buffersink")
	if buffersrc == nil || buffersink == nil {
		graph.Free()
		return fmt.Errorf("codec: buffer/buffersink filters unavailable")
	}

	tb := p.videoStream.TimeBase()
	srcArgs := fmt.Sprintf("video_size=%dx%d:pix_fmt=%d:time_base=%d/%d:pixel_aspect=1/1",
		p.videoDecoder.Width(), p.videoDecoder.Height(), int(p.videoDecoder.PixelFormat()), tb.Num(), tb.Den())

	srcCtx, err := graph.NewFilterContext(buffersrc, "in", srcArgs)
	if err != nil {
		graph.Free()
		return fmt.Errorf("codec: create buffer source: %w", err)
	}
	sinkCtx, err := graph.NewFilterContext(buffersink, "out", "")
	if err != nil {
		graph.Free()
		return fmt.Errorf("codec: create buffer sink: %w", err)
	}

	// convert to YUVJ420P, scale to the computed output dims with Lanczos.
	filterSpec := fmt.Sprintf("format=pix_fmts=yuvj420p,scale=%d:%d:flags=lanczos", outWidth, outHeight)
	if err := graph.ParseSegment(filterSpec, srcCtx, sinkCtx); err != nil {
		graph.Free()
		return fmt.Errorf("codec: parse filter graph: %w", err)
	}
	if err := graph.Configure(); err != nil {
		graph.Free()
		return fmt.Errorf("codec: configure filter graph: %w", err)
	}

	p.filterGraph = graph
	p.filterSrc = srcCtx
	p.filterSink = sinkCtx
	return nil
}

// buildReservedAudioFilterGraph allocates the filter graph reserved for
// the audio path when an audio decoder is open. The graph is left empty:
// no aformat/asetnsamples filters are linked into it, no AAC encoder
// context is opened, and no frame is ever fed to it.
func (p *Pipeline) buildReservedAudioFilterGraph() {
	if p.audioDecoder == nil {
		return
	}
	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return
	}
	p.audioFilterGraph = graph
	// The empty graph stays allocated so Close() frees it the same way
	// as the video filter graph.
}

func (p *Pipeline) openMJPEGEncoder(width, height int) error {
	enc := astiav.FindEncoder(astiav.CodecIDMjpeg)
	if enc == nil {
		return fmt.Errorf("codec: no mjpeg encoder available")
	}
	ctx := astiav.AllocCodecContext(enc)
	if ctx == nil {
		return fmt.Errorf("codec: alloc mjpeg encoder context failed")
	}

	ctx.SetWidth(width)
	ctx.SetHeight(height)
	ctx.SetPixelFormat(astiav.PixelFormatYuvj420P)
	ctx.SetTimeBase(p.videoStream.TimeBase())
	ctx.SetFramerate(p.videoStream.AvgFrameRate())
	ctx.SetBitRate(mjpegBitrate)
	ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	if err := ctx.Open(enc, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("codec: open mjpeg encoder: %w", err)
	}
	p.mjpegEncoder = ctx
	return nil
}

// SkipTranscode reports whether this run's input already satisfies the
// transcode short-circuit policy.
func (p *Pipeline) SkipTranscode() bool { return p.skipTranscode }

// VideoStreamIndex is used by the driver to identify which demuxed
// packets belong to the video stream it pumps through this pipeline.
func (p *Pipeline) VideoStreamIndex() int { return p.videoStream.Index() }

// OutputDimensions returns the computed output width/height for this
// run, used by the recorder to size a new moment container's video
// track.
func (p *Pipeline) OutputDimensions() (width, height int) {
	return p.outputWidth, p.outputHeight
}

// VideoTimeBase exposes the input video stream's timebase to the pacer's
// elapsed-time computation.
func (p *Pipeline) VideoTimeBase() (num, den int) {
	tb := p.videoStream.TimeBase()
	return tb.Num(), tb.Den()
}

// AvgFrameRate exposes the input video stream's average frame rate, the
// same value the MJPEG encoder is configured with (see SetFramerate in
// openMJPEGEncoder), so the pacer's target interval is derived from the
// same quantity rather than from the stream's timebase.
func (p *Pipeline) AvgFrameRate() float64 {
	fr := p.videoStream.AvgFrameRate()
	if fr.Den() == 0 {
		return 0
	}
	return float64(fr.Num()) / float64(fr.Den())
}

// Close releases every native resource this pipeline owns. Safe to call
// more than once; each Free is guarded.
func (p *Pipeline) Close() {
	if p.encodedPacket != nil {
		p.encodedPacket.Free()
		p.encodedPacket = nil
	}
	if p.filteredFrame != nil {
		p.filteredFrame.Free()
		p.filteredFrame = nil
	}
	if p.decodedFrame != nil {
		p.decodedFrame.Free()
		p.decodedFrame = nil
	}
	if p.mjpegEncoder != nil {
		p.mjpegEncoder.Free()
		p.mjpegEncoder = nil
	}
	if p.audioFilterGraph != nil {
		p.audioFilterGraph.Free()
		p.audioFilterGraph = nil
	}
	if p.filterGraph != nil {
		p.filterGraph.Free()
		p.filterGraph = nil
	}
	if p.audioDecoder != nil {
		p.audioDecoder.Free()
		p.audioDecoder = nil
	}
	if p.videoDecoder != nil {
		p.videoDecoder.Free()
		p.videoDecoder = nil
	}
	if p.formatCtx != nil {
		p.formatCtx.CloseInput()
		p.formatCtx = nil
	}
}

// ReadPacket reads the next demuxed packet into pkt. pkt stays owned by
// the caller: ProcessVideoPacket reads it without freeing it, so the
// caller unrefs pkt before reusing it and frees it when done.
func (p *Pipeline) ReadPacket(pkt *astiav.Packet) error {
	return p.formatCtx.ReadFrame(pkt)
}
