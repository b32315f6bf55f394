package demux

import (
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// A Packet is one demuxed unit of a stream, typically an access unit.
type Packet struct {
	Stream    int
	Data      []byte
	Timestamp time.Duration // Presentation time, or media.NoTimestamp.
	Duration  time.Duration // media.NoTimestamp if the container has none.
	KeyFrame  bool
}

// A Parser reads packets from a container format.
type Parser interface {
	// Streams inspects the container and describes its streams. Packet.Stream
	// indexes into the result.
	Streams() ([]media.StreamInfo, error)

	// ReadPacket returns the next packet, or io.EOF at the end.
	ReadPacket() (Packet, error)

	// SeekToTime positions the parser on a key frame near t. When backward is
	// set, the key frame at or before t is preferred.
	SeekToTime(t time.Duration, backward bool) error
}

// A function used to open a specific container format.
type OpenFunc func(r io.ReadSeeker) (Parser, error)

type format struct {
	open       OpenFunc
	extensions []string
}

var registry = map[string]format{}

// RegisterFormat registers a container format, identified by its tag.
// Sources whose name ends in one of the extensions use this format when no
// tag is given explicitly.
func RegisterFormat(tag string, open OpenFunc, extensions ...string) {
	registry[tag] = format{open, extensions}
}

// Formats lists the registered format tags.
func Formats() []string {
	var tags []string
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// FormatForName picks a format tag from a file name or URL.
func FormatForName(name string) (string, bool) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	for tag, f := range registry {
		for _, e := range f.extensions {
			if e == ext {
				return tag, true
			}
		}
	}
	return "", false
}

// openParser opens r with the parser registered for tag.
func openParser(tag string, r io.ReadSeeker) (Parser, error) {
	log.Debug("Registered formats: %v", Formats())

	f, found := registry[tag]
	if !found {
		return nil, errors.Errorf("format '%s' not registered", tag)
	}
	return f.open(r)
}

// packetSource is implemented by parsers of formats without a seek index.
type packetSource interface {
	// rewind restarts reading at the first packet.
	rewind() error
	readPacket() (Packet, error)
}

// scanningSeeker seeks by reading packets from the start of the container.
type scanningSeeker struct {
	src     packetSource
	pending []Packet
}

func (s *scanningSeeker) ReadPacket() (Packet, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}
	return s.src.readPacket()
}

func (s *scanningSeeker) SeekToTime(t time.Duration, backward bool) error {
	s.pending = nil

	target := t
	if backward {
		// Find the last key frame at or before t.
		if err := s.src.rewind(); err != nil {
			return err
		}
		target = 0
		for {
			pkt, err := s.src.readPacket()
			if err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			if pkt.Timestamp > t {
				break
			}
			if pkt.KeyFrame && pkt.Timestamp != media.NoTimestamp {
				target = pkt.Timestamp
			}
		}
	}

	if err := s.src.rewind(); err != nil {
		return err
	}
	for {
		pkt, err := s.src.readPacket()
		if err == io.EOF {
			// Nothing at or after the target; reads will report EOF.
			return nil
		} else if err != nil {
			return err
		}
		if pkt.KeyFrame && pkt.Timestamp != media.NoTimestamp && pkt.Timestamp >= target {
			s.pending = append(s.pending, pkt)
			return nil
		}
	}
}
