// Package codec packs optical frame images into compressed video segments
// and recovers single frames from them. Every profile is all-intra: each
// frame is a keyframe, because random chunk access seeks to one frame
// without decoding its neighbours.
package codec

import (
	"fmt"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/optical"
)

// Family identifies a codec family with its own encoder backend.
type Family string

// Supported codec families.
const (
	FamilyMP4V Family = "mp4v"
	FamilyH264 Family = "h264"
	FamilyH265 Family = "h265"
	FamilyVP9  Family = "vp9"
	FamilyAV1  Family = "av1"
)

// encoderName maps a family to its ffmpeg encoder.
var encoderName = map[Family]string{
	FamilyMP4V: "mpeg4",
	FamilyH264: "libx264",
	FamilyH265: "libx265",
	FamilyVP9:  "libvpx-vp9",
	FamilyAV1:  "libaom-av1",
}

// Profile is a named, read-only codec configuration. Tuning arguments are
// enumerated fields, not passthrough strings, so invalid combinations are
// rejected before the encoder backend runs.
type Profile struct {
	// Name is the profile identifier used in configuration and the TOC.
	Name string

	// Family selects the encoder backend.
	Family Family

	// Container is the stream container format: "mp4", "webm" or
	// "matroska".
	Container string

	// FPS is the stream frame rate. It has no effect on retrieval; it
	// only shapes the container timing metadata.
	FPS int

	// Width and Height are the raster dimensions of every frame.
	Width  int
	Height int

	// Quality is the compression quality factor: CRF for the CRF-driven
	// families, qscale for mp4v. Lower is higher fidelity.
	Quality int

	// Preset is the encoder speed preset. For av1 it maps to cpu-used.
	Preset string

	// Chroma is the chroma subsampling: "420" or "444".
	Chroma string

	// AllIntra forces every frame to be a keyframe. This is a hard
	// design rule; Validate rejects profiles without it.
	AllIntra bool

	// Redundancy is the optical error-correction strength paired with
	// this compression level. Heavier compression demands higher
	// redundancy; the pairing is tuned jointly here.
	Redundancy optical.RedundancyLevel
}

var validPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true,
	"fast": true, "medium": true, "slow": true, "slower": true, "veryslow": true,
}

// Validate rejects structurally invalid profiles before any encoder runs.
func (p Profile) Validate() error {
	if _, ok := encoderName[p.Family]; !ok {
		return fmt.Errorf("%w: unknown codec family %q", domain.ErrInvalidConfiguration, p.Family)
	}
	if !p.AllIntra {
		return fmt.Errorf("%w: profile %q is not all-intra; every frame must be independently decodable",
			domain.ErrInvalidConfiguration, p.Name)
	}
	if p.Width <= 0 || p.Height <= 0 || p.Width%2 != 0 || p.Height%2 != 0 {
		return fmt.Errorf("%w: profile %q dimensions %dx%d must be positive and even",
			domain.ErrInvalidConfiguration, p.Name, p.Width, p.Height)
	}
	if p.FPS <= 0 {
		return fmt.Errorf("%w: profile %q frame rate must be positive", domain.ErrInvalidConfiguration, p.Name)
	}
	if p.Chroma != "420" && p.Chroma != "444" {
		return fmt.Errorf("%w: profile %q chroma %q must be 420 or 444",
			domain.ErrInvalidConfiguration, p.Name, p.Chroma)
	}
	if p.Family == FamilyVP9 && p.Chroma == "444" {
		return fmt.Errorf("%w: profile %q: vp9 profiles here are 420-only",
			domain.ErrInvalidConfiguration, p.Name)
	}
	if p.Preset != "" && !validPresets[p.Preset] {
		return fmt.Errorf("%w: profile %q preset %q unknown",
			domain.ErrInvalidConfiguration, p.Name, p.Preset)
	}
	if p.Quality < 0 || p.Quality > 63 {
		return fmt.Errorf("%w: profile %q quality %d out of range",
			domain.ErrInvalidConfiguration, p.Name, p.Quality)
	}
	switch p.Container {
	case "mp4", "webm", "matroska":
	default:
		return fmt.Errorf("%w: profile %q container %q unsupported",
			domain.ErrInvalidConfiguration, p.Name, p.Container)
	}
	return nil
}

// EncoderName returns the ffmpeg encoder the profile requires.
func (p Profile) EncoderName() string { return encoderName[p.Family] }

func (p Profile) pixFmt() string {
	if p.Chroma == "444" {
		return "yuv444p"
	}
	return "yuv420p"
}

// encodeArgs builds the output-side ffmpeg arguments for this profile.
func (p Profile) encodeArgs() []string {
	args := []string{"-c:v", p.EncoderName(), "-pix_fmt", p.pixFmt(), "-g", "1", "-keyint_min", "1"}

	switch p.Family {
	case FamilyH264:
		args = append(args, "-preset", p.Preset, "-tune", "stillimage", "-crf", fmt.Sprint(p.Quality))
	case FamilyH265:
		args = append(args, "-preset", p.Preset, "-crf", fmt.Sprint(p.Quality),
			"-x265-params", "keyint=1:min-keyint=1")
	case FamilyVP9:
		args = append(args, "-deadline", "good", "-crf", fmt.Sprint(p.Quality), "-b:v", "0")
	case FamilyAV1:
		args = append(args, "-cpu-used", fmt.Sprint(av1CPUUsed(p.Preset)),
			"-crf", fmt.Sprint(p.Quality), "-b:v", "0")
	case FamilyMP4V:
		args = append(args, "-q:v", fmt.Sprint(p.Quality))
	}

	switch p.Container {
	case "mp4":
		// Fragmented output so the container streams through a pipe.
		args = append(args, "-movflags", "+frag_keyframe+empty_moov", "-f", "mp4")
	case "webm":
		args = append(args, "-f", "webm")
	case "matroska":
		args = append(args, "-f", "matroska")
	}
	return args
}

// av1CPUUsed maps a named speed preset onto libaom's cpu-used scale.
func av1CPUUsed(preset string) int {
	switch preset {
	case "veryslow", "slower":
		return 2
	case "slow":
		return 4
	case "fast", "faster":
		return 7
	case "veryfast", "superfast", "ultrafast":
		return 8
	default:
		return 6
	}
}

// Profiles returns the built-in profile table: five codec families with
// different speed, size and robustness trade-offs. Fidelity-tuned profiles
// pair lower redundancy with near-lossless quality; size-tuned profiles
// compress harder and carry more optical error correction.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"mp4v": {
			Name: "mp4v", Family: FamilyMP4V, Container: "mp4",
			FPS: 15, Width: 512, Height: 512, Quality: 2,
			Chroma: "420", AllIntra: true,
			Redundancy: optical.RedundancyMedium,
		},
		"h264": {
			Name: "h264", Family: FamilyH264, Container: "mp4",
			FPS: 30, Width: 512, Height: 512, Quality: 18, Preset: "medium",
			Chroma: "420", AllIntra: true,
			Redundancy: optical.RedundancyMedium,
		},
		"h265": {
			Name: "h265", Family: FamilyH265, Container: "mp4",
			FPS: 30, Width: 512, Height: 512, Quality: 24, Preset: "medium",
			Chroma: "420", AllIntra: true,
			Redundancy: optical.RedundancyQuartile,
		},
		"vp9": {
			Name: "vp9", Family: FamilyVP9, Container: "webm",
			FPS: 30, Width: 512, Height: 512, Quality: 32,
			Chroma: "420", AllIntra: true,
			Redundancy: optical.RedundancyQuartile,
		},
		"av1": {
			Name: "av1", Family: FamilyAV1, Container: "matroska",
			FPS: 30, Width: 512, Height: 512, Quality: 30, Preset: "medium",
			Chroma: "420", AllIntra: true,
			Redundancy: optical.RedundancyHigh,
		},
	}
}

// DefaultFallback is the profile priority order when the requested encoder
// backend is unavailable: visual fidelity before pure size.
func DefaultFallback() []string {
	return []string{"h264", "mp4v", "h265", "vp9", "av1"}
}
