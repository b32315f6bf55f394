package decode

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// A Picture is a decoded image in codec-owned memory, valid until the next
// call into the codec.
type Picture struct {
	Format  media.FrameFormat
	Width   int
	Height  int
	Planes  [media.NumPlanes][]byte
	Strides [media.NumPlanes]int

	// Timestamp is media.NoTimestamp if the codec does not track time.
	Timestamp time.Duration

	// RepeatCount is the number of extra half-frames to display.
	RepeatCount int
}

// A Codec decodes access units one at a time.
type Codec interface {
	// Format is the format of decoded pictures.
	Format() media.FrameFormat

	// Decode consumes one access unit. A nil data drains delayed pictures.
	// Returns a nil picture when none is ready.
	Decode(data []byte, timestamp time.Duration) (*Picture, error)

	// Reset drops delayed pictures and reference state, e.g. after a seek.
	Reset()

	Close() error
}

// A DirectCodec can decode into frames provided by the caller.
type DirectCodec interface {
	Codec

	// DecodeInto decodes one access unit into frame. Returns false when no
	// picture is ready, in which case frame is untouched.
	DecodeInto(data []byte, timestamp time.Duration, frame *media.VideoFrame) (bool, error)
}

// A function used to open a specific codec.
type OpenCodecFunc func(config Config) (Codec, error)

var codecs = map[string]OpenCodecFunc{}

// RegisterCodec registers a codec by name. Names match media.StreamInfo.Codec.
func RegisterCodec(name string, open OpenCodecFunc) {
	codecs[name] = open
}

// Codecs lists the registered codec names.
func Codecs() []string {
	var names []string
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openCodec(config Config) (Codec, error) {
	open, found := codecs[config.Codec]
	if !found {
		return nil, errors.Errorf("codec '%s' not registered", config.Codec)
	}
	return open(config)
}
