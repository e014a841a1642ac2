// Package quality maps latency profiles and a user bitrate onto the encoding
// limits applied to outgoing tracks and the playout hint used by receivers.
package quality

import (
	"strings"
	"time"
)

// DefaultBitrate is the user bitrate in bits per second when none is set.
const DefaultBitrate = 2_500_000

// Profile names.
const (
	ProfileUltra   = "ultra"
	ProfileLow     = "low"
	ProfileQuality = "quality"
)

// DefaultProfile trades resolution for the lowest glass-to-glass latency.
const DefaultProfile = ProfileUltra

// Profile bounds a stream. PlayoutDelay is a hint for the receiving side's
// jitter buffer.
type Profile struct {
	Name         string
	MaxWidth     int
	MaxHeight    int
	MaxFPS       int
	MaxBitrate   int
	PlayoutDelay time.Duration
}

var profiles = []Profile{
	{Name: ProfileUltra, MaxWidth: 1280, MaxHeight: 720, MaxFPS: 24, MaxBitrate: 2_000_000},
	{Name: ProfileLow, MaxWidth: 1600, MaxHeight: 900, MaxFPS: 30, MaxBitrate: 3_000_000, PlayoutDelay: 40 * time.Millisecond},
	{Name: ProfileQuality, MaxWidth: 1920, MaxHeight: 1080, MaxFPS: 30, MaxBitrate: 5_000_000, PlayoutDelay: 80 * time.Millisecond},
}

// Profiles lists the known profiles, lowest latency first.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// LookupProfile returns the named profile. Unknown names fall back to the
// quality profile and report false.
func LookupProfile(name string) (Profile, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return profiles[len(profiles)-1], false
}

// NextProfile returns the profile after name, wrapping around.
func NextProfile(name string) Profile {
	for i, p := range profiles {
		if p.Name == name {
			return profiles[(i+1)%len(profiles)]
		}
	}
	return profiles[0]
}

// Quality is what gets applied to a session or a source.
type Quality struct {
	Profile Profile
	Bitrate int
}

// New resolves a profile name and user bitrate. A non-positive bitrate
// selects DefaultBitrate.
func New(profile string, bitrate int) Quality {
	p, _ := LookupProfile(profile)
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return Quality{Profile: p, Bitrate: bitrate}
}

// Default is the ultra profile at DefaultBitrate.
func Default() Quality {
	return New(DefaultProfile, DefaultBitrate)
}

// EffectiveBitrate is the user bitrate capped by the profile.
func (q Quality) EffectiveBitrate() int {
	return min(q.Bitrate, q.Profile.MaxBitrate)
}

// FrameInterval is the minimum spacing between frames at the profile's
// frame rate cap.
func (q Quality) FrameInterval() time.Duration {
	if q.Profile.MaxFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(q.Profile.MaxFPS)
}
