package serial

import (
	"sync"

	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

// TestLink is an in memory FrameLink. Bytes injected with Receive go through the same frame
// assembly as a real port, written frames are delivered on Written.
type TestLink struct {
	mu        sync.Mutex
	assembler *frameAssembler
	onFrame   func([]byte)
	onError   func(error)
	open      bool
	Written   chan []byte
}

func NewTestLink(framer solax_modbus.Framer) *TestLink {
	return &TestLink{
		assembler: newFrameAssembler(framer),
		Written:   make(chan []byte, 64),
	}
}

func (l *TestLink) Open(onFrame func(frame []byte), onError func(err error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFrame = onFrame
	l.onError = onError
	l.open = true
	return nil
}

// Receive simulates bytes arriving on the line.
func (l *TestLink) Receive(data []byte) error {
	l.mu.Lock()
	frames, err := l.assembler.Push(data)
	onFrame := l.onFrame
	l.mu.Unlock()
	for _, frame := range frames {
		onFrame(frame)
	}
	return err
}

// Gap simulates a silent line.
func (l *TestLink) Gap() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assembler.Reset()
}

// Fail simulates a broken port.
func (l *TestLink) Fail(err error) {
	l.mu.Lock()
	l.open = false
	onError := l.onError
	l.mu.Unlock()
	onError(err)
}

func (l *TestLink) Write(frame []byte) error {
	l.mu.Lock()
	open := l.open
	l.mu.Unlock()
	if !open {
		return ErrLinkClosed
	}
	written := make([]byte, len(frame))
	copy(written, frame)
	l.Written <- written
	return nil
}

func (l *TestLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *TestLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	return nil
}

var _ port.FrameLink = &TestLink{}
