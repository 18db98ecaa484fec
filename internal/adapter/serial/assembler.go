package serial

import (
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

// frameAssembler accumulates bytes read from the line until the framer recognizes a complete frame.
type frameAssembler struct {
	framer solax_modbus.Framer
	buf    []byte
}

func newFrameAssembler(framer solax_modbus.Framer) *frameAssembler {
	return &frameAssembler{
		framer: framer,
		buf:    make([]byte, 0, framer.MaxFrameSize()),
	}
}

// Push appends data and returns every complete frame found. On a framing error the pending
// bytes are discarded and the error is returned along with the frames found before it.
func (a *frameAssembler) Push(data []byte) ([][]byte, error) {
	var frames [][]byte
	a.buf = append(a.buf, data...)
	for len(a.buf) > 0 {
		n, err := a.framer.Next(a.buf)
		if err != nil {
			a.Reset()
			return frames, err
		}
		if n == 0 {
			if len(a.buf) >= a.framer.MaxFrameSize() {
				a.Reset()
			}
			break
		}
		frame := make([]byte, n)
		copy(frame, a.buf[:n])
		frames = append(frames, frame)
		a.buf = a.buf[n:]
	}
	if len(a.buf) == 0 {
		a.buf = a.buf[:0:cap(a.buf)]
	}
	return frames, nil
}

func (a *frameAssembler) Pending() int {
	return len(a.buf)
}

// Reset drops the pending bytes, either after a silent gap on the line or a framing error.
func (a *frameAssembler) Reset() {
	a.buf = a.buf[:0]
}
