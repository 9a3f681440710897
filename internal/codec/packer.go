package codec

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/logger"
)

// Backend is the encoder/decoder the packer drives. The ffmpeg Runner is
// the production implementation; tests substitute a stub.
type Backend interface {
	Available(p Profile) error
	Encode(ctx context.Context, frames []image.Image, p Profile) ([]byte, error)
	DecodeFrame(ctx context.Context, stream []byte, index int, p Profile) (image.Image, error)
}

// Packer assembles frame images into compressed segments, selecting a
// codec profile and falling back through the priority list when an encoder
// backend is unavailable.
type Packer struct {
	backend  Backend
	profiles map[string]Profile
	fallback []string
}

// NewPacker creates a packer over the built-in profile table.
func NewPacker(backend Backend, fallback []string) *Packer {
	if len(fallback) == 0 {
		fallback = DefaultFallback()
	}
	return &Packer{backend: backend, profiles: Profiles(), fallback: fallback}
}

// Profile resolves a profile by name.
func (p *Packer) Profile(name string) (Profile, error) {
	profile, ok := p.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown codec profile %q",
			domain.ErrInvalidConfiguration, name)
	}
	return profile, nil
}

// Pack compresses the frames with the requested profile, trying the
// fallback list in priority order when the backend is unavailable. The
// profile actually used is returned so the TOC can record it.
func (p *Packer) Pack(ctx context.Context, frames []image.Image, profileName string) ([]byte, Profile, error) {
	tried := make([]string, 0, 1+len(p.fallback))
	candidates := append([]string{profileName}, p.fallback...)

	var lastErr error
	for _, name := range candidates {
		if contains(tried, name) {
			continue
		}
		tried = append(tried, name)

		profile, err := p.Profile(name)
		if err != nil {
			return nil, Profile{}, err
		}
		if err := profile.Validate(); err != nil {
			return nil, Profile{}, err
		}

		data, err := p.backend.Encode(ctx, frames, profile)
		if err == nil {
			logger.Debug("Packed %d frames with profile %q (%d bytes)", len(frames), name, len(data))
			return data, profile, nil
		}
		if !errors.Is(err, domain.ErrCodecUnavailable) {
			return nil, Profile{}, err
		}
		logger.Warn("Codec profile %q unavailable, trying next fallback: %v", name, err)
		lastErr = err
	}

	return nil, Profile{}, fmt.Errorf("%w: no usable profile among %v (%v)",
		domain.ErrCodecUnavailable, tried, lastErr)
}

// Unpack decodes the index-th frame of a packed segment.
func (p *Packer) Unpack(ctx context.Context, data []byte, index int, profileName string) (image.Image, error) {
	profile, err := p.Profile(profileName)
	if err != nil {
		return nil, err
	}
	return p.backend.DecodeFrame(ctx, data, index, profile)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
