package broadcaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astits"
)

// ValidatePacketAlignment confirms that buf, already trimmed to a multiple
// of PacketSize by aligner.Align, demuxes as a clean sequence of MPEG-TS
// packets with no sync-byte drift. It is not on the hot path of every
// chunk delivery (that would add a full demux pass per 32 KiB read); the
// broadcaster's read loop runs it once, against the first aligned chunk
// from a newly bound source, as a stronger check than the raw modulo
// arithmetic alone. Also used directly by tests.
func ValidatePacketAlignment(buf []byte) error {
	if len(buf)%PacketSize != 0 {
		return fmt.Errorf("buffer length %d is not a multiple of %d", len(buf), PacketSize)
	}
	if len(buf) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dmx := astits.NewDemuxer(ctx, bytes.NewReader(buf))
	for {
		_, err := dmx.NextPacket()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return nil
			}
			return fmt.Errorf("packet alignment check: %w", err)
		}
	}
}
