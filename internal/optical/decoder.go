package optical

import (
	"encoding/base64"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Decoder recovers shard payloads from raster frame images. It tolerates
// the partial visual degradation lossy compression introduces, up to the
// redundancy level chosen at encode time.
type Decoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewDecoder creates a frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeImage scans one frame image and returns the shard it carries.
// A frame with no recoverable code is ErrUnscannable; a recovered payload
// whose embedded checksum fails is ErrChecksumMismatch.
func (d *Decoder) DecodeImage(img image.Image) (Shard, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Shard{}, fmt.Errorf("%w: %v", domain.ErrUnscannable, err)
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		return Shard{}, fmt.Errorf("%w: %v", domain.ErrUnscannable, err)
	}

	envelope, err := base64.RawStdEncoding.DecodeString(result.GetText())
	if err != nil {
		return Shard{}, fmt.Errorf("%w: invalid transport encoding", domain.ErrUnscannable)
	}

	return UnmarshalShard(envelope)
}
