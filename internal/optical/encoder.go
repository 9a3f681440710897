package optical

import (
	"encoding/base64"
	"fmt"
	"image"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// RedundancyLevel is the optical error-correction strength. Higher levels
// survive heavier video compression artifacting at the cost of capacity.
// Profile selection tunes compression quality and redundancy jointly.
type RedundancyLevel uint8

// Supported redundancy levels, lowest to highest.
const (
	RedundancyLow RedundancyLevel = iota
	RedundancyMedium
	RedundancyQuartile
	RedundancyHigh
)

// String implements fmt.Stringer.
func (r RedundancyLevel) String() string {
	switch r {
	case RedundancyLow:
		return "low"
	case RedundancyMedium:
		return "medium"
	case RedundancyQuartile:
		return "quartile"
	case RedundancyHigh:
		return "high"
	default:
		return fmt.Sprintf("redundancy(%d)", uint8(r))
	}
}

// ParseRedundancy maps a configuration string to a redundancy level.
func ParseRedundancy(s string) (RedundancyLevel, error) {
	switch s {
	case "low":
		return RedundancyLow, nil
	case "", "medium":
		return RedundancyMedium, nil
	case "quartile":
		return RedundancyQuartile, nil
	case "high":
		return RedundancyHigh, nil
	default:
		return 0, fmt.Errorf("%w: unknown redundancy level %q",
			domain.ErrInvalidConfiguration, s)
	}
}

// qrCapacity is the byte-mode capacity of a version-40 code per level.
var qrCapacity = map[RedundancyLevel]int{
	RedundancyLow:      2953,
	RedundancyMedium:   2331,
	RedundancyQuartile: 1663,
	RedundancyHigh:     1273,
}

func (r RedundancyLevel) recoveryLevel() qrcode.RecoveryLevel {
	switch r {
	case RedundancyLow:
		return qrcode.Low
	case RedundancyQuartile:
		return qrcode.High
	case RedundancyHigh:
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

// MaxPayload returns the largest shard payload that fits one optical code
// at the given level, accounting for the envelope header and the base64
// transport encoding inside the code's text segment.
func MaxPayload(level RedundancyLevel) int {
	capacity, ok := qrCapacity[level]
	if !ok {
		return 0
	}
	// base64 expands 3 raw bytes to 4 characters; keep a small margin so
	// encoder-internal segmentation never tips the code past version 40.
	raw := ((capacity - 8) * 3) / 4
	return raw - envelopeHeaderSize
}

// Encoder renders shards as square optical-code images.
type Encoder struct {
	level RedundancyLevel
	size  int
}

// NewEncoder creates an encoder producing size x size pixel images at the
// given redundancy level.
func NewEncoder(level RedundancyLevel, size int) (*Encoder, error) {
	if _, ok := qrCapacity[level]; !ok {
		return nil, fmt.Errorf("%w: unknown redundancy level %d",
			domain.ErrInvalidConfiguration, level)
	}
	if size < 64 {
		return nil, fmt.Errorf("%w: frame size %d too small to scan",
			domain.ErrInvalidConfiguration, size)
	}
	return &Encoder{level: level, size: size}, nil
}

// Level returns the configured redundancy level.
func (e *Encoder) Level() RedundancyLevel { return e.level }

// Size returns the rendered image edge length in pixels.
func (e *Encoder) Size() int { return e.size }

// EncodeChunk shards the chunk payload and renders one image per shard.
// Rendering has no randomised layout: the same payload and parameters
// reproduce byte-identical images.
func (e *Encoder) EncodeChunk(chunkID string, payload []byte) ([]image.Image, error) {
	shards, err := SplitPayload(chunkID, payload, e.level)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, 0, len(shards))
	for _, shard := range shards {
		img, err := e.EncodeShard(shard)
		if err != nil {
			return nil, fmt.Errorf("shard %d/%d: %w", shard.Index, shard.Count, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// EncodeShard renders a single shard as an optical-code image.
func (e *Encoder) EncodeShard(shard Shard) (image.Image, error) {
	envelope, err := MarshalShard(shard)
	if err != nil {
		return nil, err
	}

	text := base64.RawStdEncoding.EncodeToString(envelope)
	qr, err := qrcode.New(text, e.level.recoveryLevel())
	if err != nil {
		return nil, fmt.Errorf("render optical code: %w", err)
	}
	return qr.Image(e.size), nil
}
