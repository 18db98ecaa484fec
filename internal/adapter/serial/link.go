package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/goburrow/serial"
	"go.uber.org/zap"
)

const (
	DEFAULT_BAUD_RATE = 9600
	DEFAULT_FRAME_GAP = 50 * time.Millisecond
)

var ErrLinkClosed = errors.New("serial link is closed")

// Link is a serial port framed by a solax_modbus.Framer.
type Link struct {
	config config.SerialConfig
	framer solax_modbus.Framer
	port   serial.Port
	open   atomic.Bool
	wmu    sync.Mutex
	done   chan struct{}
	logger *zap.Logger
}

func NewLink(cfg config.SerialConfig, framer solax_modbus.Framer, logger *zap.Logger) *Link {
	return &Link{
		config: cfg,
		framer: framer,
		logger: logger.With(zap.String("device", cfg.Device)),
	}
}

func portConfig(cfg config.SerialConfig) *serial.Config {
	pc := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.FrameGap,
	}
	if pc.BaudRate == 0 {
		pc.BaudRate = DEFAULT_BAUD_RATE
	}
	if pc.DataBits == 0 {
		pc.DataBits = 8
	}
	if pc.StopBits == 0 {
		pc.StopBits = 1
	}
	if pc.Parity == "" {
		pc.Parity = "N"
	}
	if pc.Timeout <= 0 {
		pc.Timeout = DEFAULT_FRAME_GAP
	}
	if cfg.RS485 {
		pc.RS485 = serial.RS485Config{
			Enabled:           true,
			RtsHighDuringSend: true,
		}
	}
	return pc
}

func (l *Link) Open(onFrame func(frame []byte), onError func(err error)) error {
	p, err := serial.Open(portConfig(l.config))
	if err != nil {
		return fmt.Errorf("could not open %s: %w", l.config.Device, err)
	}
	l.port = p
	l.done = make(chan struct{})
	l.open.Store(true)
	go l.readLoop(onFrame, onError)
	return nil
}

func (l *Link) readLoop(onFrame func(frame []byte), onError func(err error)) {
	assembler := newFrameAssembler(l.framer)
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			frames, ferr := assembler.Push(buf[:n])
			for _, frame := range frames {
				onFrame(frame)
			}
			if ferr != nil {
				l.logger.Warn("serial: discarding bytes", zap.Error(ferr))
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, serial.ErrTimeout) {
			// silent line, any partial frame is garbage
			if assembler.Pending() > 0 {
				l.logger.Debug("serial: frame gap, dropping partial frame", zap.Int("bytes", assembler.Pending()))
				assembler.Reset()
			}
			continue
		}
		select {
		case <-l.done:
			return
		default:
		}
		l.open.Store(false)
		if !errors.Is(err, io.EOF) {
			l.logger.Error("serial: read error", zap.Error(err))
		}
		onError(err)
		return
	}
}

func (l *Link) Write(frame []byte) error {
	if !l.open.Load() {
		return ErrLinkClosed
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_, err := l.port.Write(frame)
	return err
}

func (l *Link) IsOpen() bool {
	return l.open.Load()
}

func (l *Link) Close() error {
	if !l.open.Swap(false) {
		return nil
	}
	close(l.done)
	return l.port.Close()
}

// ensure interface compliance
var _ port.FrameLink = &Link{}
