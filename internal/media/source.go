package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
	"github.com/AgentIsComing/live-screen-share-releases/internal/session"
)

const (
	defaultFrameInterval = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
	opusSampleRate       = 48000
)

var (
	errNoInput       = errors.New("need a video or audio file")
	errSourceStarted = errors.New("source already started")
	errSourceClosed  = errors.New("source closed")
	errUnknownCodec  = errors.New("unsupported IVF codec")
)

var fourCCMimeTypes = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
	"AV01": webrtc.MimeTypeAV1,
}

// FileSource streams a prerecorded IVF video and/or Ogg Opus file in a loop,
// standing in for a live screen capture.
type FileSource struct {
	videoPath string
	audioPath string
	logger    *slog.Logger

	video     *webrtc.TrackLocalStaticSample
	audio     *webrtc.TrackLocalStaticSample
	nativeFPS float64

	mu      sync.Mutex
	quality quality.Quality
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

var (
	_ session.Source      = (*FileSource)(nil)
	_ session.Constrainer = (*FileSource)(nil)
)

// NewFileSource inspects the given files and creates their tracks. Either path
// may be empty, but not both.
func NewFileSource(videoPath, audioPath string, logger *slog.Logger) (*FileSource, error) {
	if videoPath == "" && audioPath == "" {
		return nil, errNoInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileSource{videoPath: videoPath, audioPath: audioPath, logger: logger, quality: quality.Default()}
	streamID := "livescreen-" + time.Now().Format("150405")

	if videoPath != "" {
		header, err := readIVFHeader(videoPath)
		if err != nil {
			return nil, err
		}
		mime, ok := fourCCMimeTypes[header.FourCC]
		if !ok {
			return nil, fmt.Errorf("%s: %w %q", videoPath, errUnknownCodec, header.FourCC)
		}
		s.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		if interval := headerInterval(header); interval > 0 {
			s.nativeFPS = float64(time.Second) / float64(interval)
		}
	}

	if audioPath != "" {
		if err := checkOgg(audioPath); err != nil {
			return nil, err
		}
		var err error
		s.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
	}
	return s, nil
}

func readIVFHeader(path string) (*ivfreader.IVFFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

func checkOgg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, err := oggreader.NewWith(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// headerInterval is one timebase unit, the frame spacing of most encoders.
func headerInterval(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseDenominator == 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
}

func (s *FileSource) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	return tracks
}

// Constrain caps the video frame rate at the profile's limit. Encoded files
// cannot be rescaled, so a faster file is paced down and plays slower.
func (s *FileSource) Constrain(q quality.Quality) {
	s.mu.Lock()
	s.quality = q
	s.mu.Unlock()

	if s.nativeFPS > float64(q.Profile.MaxFPS) {
		s.logger.Warn("video file exceeds profile frame rate, pacing playback",
			"profile", q.Profile.Name,
			"max_fps", q.Profile.MaxFPS,
			"file_fps", int(s.nativeFPS))
	}
}

// pace stretches a frame's duration to the current profile's frame interval.
func (s *FileSource) pace(d time.Duration) time.Duration {
	s.mu.Lock()
	floor := s.quality.FrameInterval()
	s.mu.Unlock()
	return max(d, floor)
}

// Start begins streaming in the background until ctx ends or Close.
func (s *FileSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSourceClosed
	}
	if s.cancel != nil {
		return errSourceStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	if s.video != nil {
		s.wg.Add(1)
		go s.loop(ctx, "video", s.streamVideo)
	}
	if s.audio != nil {
		s.wg.Add(1)
		go s.loop(ctx, "audio", s.streamAudio)
	}
	return nil
}

// Close stops streaming and waits for the writers to exit.
func (s *FileSource) Close() error {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// loop replays one file until ctx is done.
func (s *FileSource) loop(ctx context.Context, kind string, stream func(context.Context) error) {
	defer s.wg.Done()
	for {
		err := stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("stream stopped", "kind", kind, "error", err)
			return
		}
		s.logger.Debug("looping source file", "kind", kind)
	}
}

func (s *FileSource) streamVideo(ctx context.Context) error {
	f, err := os.Open(s.videoPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	interval := headerInterval(header)
	if interval <= 0 {
		interval = defaultFrameInterval
	}

	var lastTimestamp uint64
	for {
		frame, frameHeader, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		duration := interval
		if frameHeader.Timestamp > lastTimestamp {
			duration = time.Duration(frameHeader.Timestamp-lastTimestamp) * interval
		}
		lastTimestamp = frameHeader.Timestamp
		duration = s.pace(duration)

		if err := s.video.WriteSample(pionmedia.Sample{Data: frame, Duration: duration}); err != nil {
			return err
		}
		if !sleep(ctx, duration) {
			return nil
		}
	}
}

func (s *FileSource) streamAudio(ctx context.Context) error {
	f, err := os.Open(s.audioPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	var lastGranule uint64
	for {
		page, pageHeader, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		duration := oggPageDuration
		if pageHeader.GranulePosition > lastGranule {
			samples := pageHeader.GranulePosition - lastGranule
			duration = time.Duration(samples) * time.Second / opusSampleRate
		}
		lastGranule = pageHeader.GranulePosition

		if err := s.audio.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
		if !sleep(ctx, duration) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
