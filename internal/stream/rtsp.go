package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

const (
	// Frames buffered between the GStreamer callback and Read
	frameBuffer = 10
	// How long Open waits for the pipeline to reach PLAYING before
	// assuming a slow server and letting Read surface any fault
	openWait = 5 * time.Second
)

// RTSPSource captures decoded RGB frames from an RTSP camera through a
// GStreamer pipeline:
//
//	rtspsrc → rtph264depay → avdec_h264 → videoconvert → videoscale →
//	videorate → capsfilter(RGB) → appsink
//
// The source performs no reconnection of its own; when the pipeline
// reports EOS or an error, the next Read fails and the supervisor decides
// what to do.
type RTSPSource struct {
	url       string
	width     int
	height    int
	targetFPS float64

	mu       sync.Mutex
	pipeline *gst.Pipeline
	frames   chan types.Frame
	done     chan struct{}
	stop     chan struct{}
	readErr  error
	opened   bool

	seq     uint64
	dropped uint64
}

// RTSPConfig configures an RTSPSource.
type RTSPConfig struct {
	URL       string
	Width     int
	Height    int
	TargetFPS float64
}

// NewRTSPSource validates the configuration and returns an unopened source.
func NewRTSPSource(cfg RTSPConfig) (*RTSPSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rtsp url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 10
	}

	return &RTSPSource{
		url:       cfg.URL,
		width:     cfg.Width,
		height:    cfg.Height,
		targetFPS: cfg.TargetFPS,
	}, nil
}

// Open builds the GStreamer pipeline and starts it playing.
func (s *RTSPSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("rtsp source already open")
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return fmt.Errorf("failed to create rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", s.url)
	rtspsrc.SetProperty("protocols", 4) // TCP
	rtspsrc.SetProperty("latency", 200)

	rtph264depay, err := gst.NewElement("rtph264depay")
	if err != nil {
		return fmt.Errorf("failed to create rtph264depay: %w", err)
	}
	decoder, err := gst.NewElement("avdec_h264")
	if err != nil {
		return fmt.Errorf("failed to create avdec_h264: %w", err)
	}
	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(framerateCaps(s.width, s.height, s.targetFPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	frames := make(chan types.Frame, frameBuffer)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink, frames)
		},
	})

	if err := pipeline.AddMany(rtspsrc, rtph264depay, decoder, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(rtph264depay, decoder, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("failed to link elements: %w", err)
	}

	// rtspsrc pads are dynamic; link once the stream is negotiated
	rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := rtph264depay.GetStaticPad("sink")
		if sinkPad != nil {
			srcPad.Link(sinkPad)
		}
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	bus := pipeline.GetPipelineBus()
	if err := waitForPlaying(ctx, bus, pipeline); err != nil {
		pipeline.SetState(gst.StateNull)
		return err
	}

	s.pipeline = pipeline
	s.frames = frames
	s.done = make(chan struct{})
	s.stop = make(chan struct{})
	s.readErr = nil
	s.opened = true

	go s.watchBus(bus, s.stop, s.done)

	slog.Info("rtsp source opened",
		"url", s.url,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"target_fps", s.targetFPS,
	)
	return nil
}

// Read returns the next decoded frame.
func (s *RTSPSource) Read(ctx context.Context) (types.Frame, error) {
	s.mu.Lock()
	frames, done, opened := s.frames, s.done, s.opened
	s.mu.Unlock()

	if !opened {
		return types.Frame{}, fmt.Errorf("rtsp source not open")
	}

	// Drain buffered frames before reporting a pipeline fault
	select {
	case frame := <-frames:
		return frame, nil
	default:
	}

	select {
	case frame := <-frames:
		return frame, nil
	case <-done:
		return types.Frame{}, s.takeErr()
	case <-ctx.Done():
		return types.Frame{}, ctx.Err()
	}
}

// Close tears down the pipeline. Safe to call repeatedly.
func (s *RTSPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	close(s.stop)
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("failed to stop pipeline cleanly", "error", err)
	}
	s.pipeline = nil
	s.opened = false

	slog.Info("rtsp source closed", "frames", atomic.LoadUint64(&s.seq), "dropped", atomic.LoadUint64(&s.dropped))
	return nil
}

// onNewSample copies one decoded sample out of GStreamer and hands it to
// Read. Never blocks the streaming thread: if the buffer is full the frame
// is dropped and counted.
func (s *RTSPSource) onNewSample(sink *app.Sink, frames chan types.Frame) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// GStreamer reuses the buffer after this callback returns
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := types.Frame{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	select {
	case frames <- frame:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
	return gst.FlowOK
}

// watchBus polls the pipeline bus and converts EOS or error messages into
// a terminal read error.
func (s *RTSPSource) watchBus(bus *gst.Bus, stop, done chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("rtsp: end of stream")
			s.fail(ErrEndOfStream, done)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("rtsp: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			s.fail(fmt.Errorf("pipeline error: %w", gerr), done)
			return
		}
	}
}

func (s *RTSPSource) fail(err error, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		s.readErr = err
		close(done)
	}
}

func (s *RTSPSource) takeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	return ErrEndOfStream
}

// waitForPlaying consumes bus messages until the pipeline reaches PLAYING,
// an error arrives, or the wait window expires. A slow server is not an
// open failure; faults after the window surface through Read.
func waitForPlaying(ctx context.Context, bus *gst.Bus, pipeline *gst.Pipeline) error {
	deadline := time.Now().Add(openWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("failed to open rtsp stream: %w", gerr)
		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, current := msg.ParseStateChanged()
				if current == gst.StatePlaying {
					return nil
				}
			}
		}
	}
	return nil
}

// framerateCaps builds the RGB caps string with a fractional framerate for
// sub-1fps targets.
func framerateCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator)
}
