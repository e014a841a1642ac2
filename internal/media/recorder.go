package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// TrackStats counts what a remote track has delivered.
type TrackStats struct {
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
}

// Receiver drains remote tracks, optionally writing them to files in dir.
type Receiver struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	tracks map[string]*trackCounter
	wg     sync.WaitGroup
}

type trackCounter struct {
	kind    string
	codec   string
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewReceiver returns a Receiver. An empty dir disables recording.
func NewReceiver(dir string, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{dir: dir, logger: logger, tracks: make(map[string]*trackCounter)}
}

// Consume reads track in the background until it ends or ctx is done.
// It never blocks.
func (r *Receiver) Consume(ctx context.Context, peerID string, track *webrtc.TrackRemote) {
	codec := track.Codec().MimeType
	counter := &trackCounter{kind: track.Kind().String(), codec: codec}
	key := peerID + "/" + track.ID()

	r.mu.Lock()
	r.tracks[key] = counter
	r.mu.Unlock()

	var writer pionmedia.Writer
	if r.dir != "" {
		w, path, err := openWriter(r.dir, peerID, track)
		if err != nil {
			r.logger.Warn("not recording track", "kind", counter.kind, "codec", codec, "error", err)
		} else {
			writer = w
			r.logger.Info("recording track", "kind", counter.kind, "path", path)
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.drain(ctx, track, writer, counter)
		if writer != nil {
			if cerr := writer.Close(); cerr != nil {
				r.logger.Warn("close recording", "error", cerr)
			}
		}
		if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
			r.logger.Debug("track ended", "kind", counter.kind, "error", err)
		}
	}()
}

func (r *Receiver) drain(ctx context.Context, track *webrtc.TrackRemote, w pionmedia.Writer, c *trackCounter) error {
	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return err
		}
		c.packets.Add(1)
		c.bytes.Add(uint64(len(pkt.Payload)))
		if w != nil {
			if err := w.WriteRTP(pkt); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

// Stats returns a snapshot per track.
func (r *Receiver) Stats() []TrackStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackStats, 0, len(r.tracks))
	for _, c := range r.tracks {
		out = append(out, TrackStats{
			Kind:    c.kind,
			Codec:   c.codec,
			Packets: c.packets.Load(),
			Bytes:   c.bytes.Load(),
		})
	}
	return out
}

// Wait blocks until every consumed track has ended.
func (r *Receiver) Wait() {
	r.wg.Wait()
}

func openWriter(dir, peerID string, track *webrtc.TrackRemote) (pionmedia.Writer, string, error) {
	mime := track.Codec().MimeType
	base := filepath.Join(dir, sanitize(peerID)+"-"+track.Kind().String())

	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		path := base + ".ivf"
		w, err := ivfwriter.New(path)
		return w, path, err
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		path := base + ".ogg"
		w, err := oggwriter.New(path, opusSampleRate, 2)
		return w, path, err
	default:
		return nil, "", fmt.Errorf("no container for %s", mime)
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
