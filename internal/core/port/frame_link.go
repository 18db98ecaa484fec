package port

// FrameLink is a serial line that delivers complete protocol frames.
type FrameLink interface {
	// Open starts reading. onFrame and onError are called from the reader goroutine.
	Open(onFrame func(frame []byte), onError func(err error)) error
	Write(frame []byte) error
	IsOpen() bool
	Close() error
}
