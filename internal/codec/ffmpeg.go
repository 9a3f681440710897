package codec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Runner drives the ffmpeg binary over pipes. No scratch files are ever
// written: raw frames stream into stdin and the container streams out of
// stdout, so the backing file stays the only artifact on disk.
type Runner struct {
	path string

	mu       sync.Mutex
	encoders map[string]bool // lazily probed from `ffmpeg -encoders`
}

// NewRunner locates the ffmpeg binary. An empty path falls back to PATH
// lookup. A missing binary is not an error here; Available reports it
// per profile so callers can fall back.
func NewRunner(path string) *Runner {
	if path == "" {
		found, err := exec.LookPath("ffmpeg")
		if err != nil {
			found = ""
		}
		path = found
	}
	return &Runner{path: path}
}

// Available reports whether the encoder backend for the profile can run.
func (r *Runner) Available(p Profile) error {
	if r.path == "" {
		return fmt.Errorf("%w: ffmpeg binary not found", domain.ErrCodecUnavailable)
	}
	encoders, err := r.probeEncoders()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCodecUnavailable, err)
	}
	if !encoders[p.EncoderName()] {
		return fmt.Errorf("%w: encoder %s not built into ffmpeg",
			domain.ErrCodecUnavailable, p.EncoderName())
	}
	return nil
}

func (r *Runner) probeEncoders() (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoders != nil {
		return r.encoders, nil
	}

	out, err := exec.Command(r.path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("probe encoders: %w", err)
	}

	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Listing lines look like " V....D libx264  H.264 ...".
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			encoders[fields[1]] = true
		}
	}
	r.encoders = encoders
	return encoders, nil
}

// Encode compresses the ordered frame images into one container stream.
func (r *Runner) Encode(ctx context.Context, frames []image.Image, p Profile) ([]byte, error) {
	if err := r.Available(p); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to encode")
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", fmt.Sprint(p.FPS),
		"-i", "pipe:0",
	}
	args = append(args, p.encodeArgs()...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, r.path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", domain.ErrCodecUnavailable, err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		for _, frame := range frames {
			if _, err := stdin.Write(rawRGB(frame, p.Width, p.Height)); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- nil
	}()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	if err := <-writeErr; err != nil && err != io.ErrClosedPipe {
		return nil, fmt.Errorf("stream frames to ffmpeg: %w", err)
	}

	return stdout.Bytes(), nil
}

// DecodeFrame extracts the index-th frame from a container stream. Only
// that frame is decoded; all-intra packing guarantees it needs no
// neighbours.
func (r *Runner) DecodeFrame(ctx context.Context, stream []byte, index int, p Profile) (image.Image, error) {
	if err := r.Available(p); err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", index),
		"-vsync", "0", "-vframes", "1",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdin = bytes.NewReader(stream)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: frame %d", domain.ErrDecodeTimeout, index)
		}
		return nil, fmt.Errorf("ffmpeg decode frame %d: %v: %s",
			index, err, strings.TrimSpace(stderr.String()))
	}

	want := p.Width * p.Height * 3
	raw := stdout.Bytes()
	if len(raw) < want {
		return nil, fmt.Errorf("%w: frame %d not present in stream", domain.ErrUnscannable, index)
	}
	return fromRawRGB(raw[:want], p.Width, p.Height), nil
}

// rawRGB renders a frame onto a white width x height canvas, centred, and
// returns it as packed RGB24 bytes.
func rawRGB(img image.Image, width, height int) []byte {
	bounds := img.Bounds()
	offX := (width - bounds.Dx()) / 2
	offY := (height - bounds.Dy()) / 2

	buf := make([]byte, width*height*3)
	for i := range buf {
		buf[i] = 0xFF
	}
	for y := 0; y < bounds.Dy(); y++ {
		ty := y + offY
		if ty < 0 || ty >= height {
			continue
		}
		for x := 0; x < bounds.Dx(); x++ {
			tx := x + offX
			if tx < 0 || tx >= width {
				continue
			}
			cr, cg, cb, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (ty*width + tx) * 3
			buf[i] = byte(cr >> 8)
			buf[i+1] = byte(cg >> 8)
			buf[i+2] = byte(cb >> 8)
		}
	}
	return buf
}

// fromRawRGB rebuilds an image from packed RGB24 bytes.
func fromRawRGB(raw []byte, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			img.SetRGBA(x, y, color.RGBA{R: raw[i], G: raw[i+1], B: raw[i+2], A: 0xFF})
		}
	}
	return img
}
