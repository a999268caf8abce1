package host

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// MaxMessageSize is the largest message accepted from the browser.
const MaxMessageSize = 1 << 20

// ErrMessageTooLarge is returned for frames above MaxMessageSize. The frame
// body has been discarded, so the stream can still be read.
var ErrMessageTooLarge = errors.New("message too large")

// ReadMessage reads one frame: a 32-bit length in native byte order
// followed by that many bytes of JSON.
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.NativeEndian, &length); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated message header: %w", err)
		}
		return nil, err
	}

	if length > MaxMessageSize {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, fmt.Errorf("truncated message: %w", err)
		}
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrMessageTooLarge,
			humanize.IBytes(uint64(length)), humanize.IBytes(MaxMessageSize))
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("truncated message: %w", err)
	}
	return buf, nil
}

// WriteMessage writes v as one JSON frame.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %s", ErrMessageTooLarge, humanize.IBytes(uint64(len(body))))
	}

	frame := make([]byte, 4+len(body))
	binary.NativeEndian.PutUint32(frame, uint32(len(body))) //nolint:gosec
	copy(frame[4:], body)

	_, err = w.Write(frame)
	return err
}
