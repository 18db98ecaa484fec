package solax_modbus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	SERIAL_NUMBER_SIZE    = 14
	DEFAULT_SERIAL_NUMBER = "3132333435363737363534333231"
)

type SerialFormatReason string

const (
	SERIAL_WRONG_LENGTH SerialFormatReason = "wrong_length"
	SERIAL_NON_HEX      SerialFormatReason = "non_hex"
)

var (
	ErrSerialWrongLength = errors.New("serial number must be 28 hex characters")
	ErrSerialNonHex      = errors.New("serial number contains a non-hex byte pair")
)

// SerialNumber is the 14 byte identity token an inverter announces on the
// COM bus before it gets an address assigned.
type SerialNumber [SERIAL_NUMBER_SIZE]byte

type SerialFormatError struct {
	Reason SerialFormatReason
	Input  string
	// Pair is the zero based index of the offending byte pair (only for SERIAL_NON_HEX)
	Pair int
}

func (e *SerialFormatError) Error() string {
	switch e.Reason {
	case SERIAL_NON_HEX:
		return fmt.Sprintf("invalid serial number %q: pair %d is not hex", e.Input, e.Pair)
	default:
		return fmt.Sprintf("invalid serial number %q: expected %d characters, got %d", e.Input, SERIAL_NUMBER_SIZE*2, len(e.Input))
	}
}

func (e *SerialFormatError) Is(target error) bool {
	switch target {
	case ErrSerialWrongLength:
		return e.Reason == SERIAL_WRONG_LENGTH
	case ErrSerialNonHex:
		return e.Reason == SERIAL_NON_HEX
	}
	return false
}

// ParseSerialNumber validates a 28 character hex string and returns its 14 raw bytes.
func ParseSerialNumber(text string) (SerialNumber, error) {
	var sn SerialNumber
	// length is counted in characters, multi-byte runes fail the hex check below
	if utf8.RuneCountInString(text) != SERIAL_NUMBER_SIZE*2 {
		return sn, &SerialFormatError{Reason: SERIAL_WRONG_LENGTH, Input: text}
	}
	for i := 0; i < SERIAL_NUMBER_SIZE; i++ {
		b, err := hex.DecodeString(text[i*2 : i*2+2])
		if err != nil {
			return SerialNumber{}, &SerialFormatError{Reason: SERIAL_NON_HEX, Input: text, Pair: i}
		}
		sn[i] = b[0]
	}
	return sn, nil
}

// NormalizeSerialNumber returns the canonical uppercase form of a serial number string.
func NormalizeSerialNumber(text string) (string, error) {
	sn, err := ParseSerialNumber(text)
	if err != nil {
		return "", err
	}
	return sn.String(), nil
}

func SerialNumberFromBytes(data []byte) (SerialNumber, error) {
	var sn SerialNumber
	if len(data) != SERIAL_NUMBER_SIZE {
		return sn, fmt.Errorf("%w: got %d bytes", ErrSerialWrongLength, len(data))
	}
	copy(sn[:], data)
	return sn, nil
}

func (sn SerialNumber) String() string {
	return strings.ToUpper(hex.EncodeToString(sn[:]))
}

func (sn SerialNumber) Bytes() []byte {
	return sn[:]
}

func (sn SerialNumber) IsZero() bool {
	return sn == SerialNumber{}
}
