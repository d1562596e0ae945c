package stwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bitcoindance/stablewallet/staddr"
)

// writeElement serializes the little-endian wire representation of a single
// element into the passed buffer.
func writeElement(w *bytes.Buffer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		if err := w.WriteByte(e); err != nil {
			return err
		}

	case int32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case int64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case string:
		if len(e) > MaxStringLength {
			return fmt.Errorf("string of length %d exceeds limit",
				len(e))
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(e)))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		if _, err := w.WriteString(e); err != nil {
			return err
		}

	case Currency:
		if err := w.WriteByte(uint8(e)); err != nil {
			return err
		}

	case TxID:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case staddr.Commitment:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case [65]byte:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case *staddr.Recipient:
		return writeRecipient(w, e)

	default:
		return fmt.Errorf("unknown type in writeElement: %T", e)
	}

	return nil
}

// writeElements serializes a variable number of elements in sequence.
func writeElements(w *bytes.Buffer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}

	return nil
}

// readElement deserializes a single element from the passed reader into the
// passed pointer. Short reads are reported verbatim; callers translate them
// into ErrMalformedEncoding at the message boundary.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *int32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = int32(binary.LittleEndian.Uint32(b[:]))

	case *int64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = int64(binary.LittleEndian.Uint64(b[:]))

	case *string:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		length := binary.LittleEndian.Uint32(b[:])
		if length > MaxStringLength {
			return fmt.Errorf("string of length %d exceeds limit",
				length)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		*e = string(buf)

	case *Currency:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		if Currency(b[0]) != CurrencyUsd {
			return ErrUnknownVariant
		}
		*e = Currency(b[0])

	case *TxID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *staddr.Commitment:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *[65]byte:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case **staddr.Recipient:
		recipient, err := readRecipient(r)
		if err != nil {
			return err
		}
		*e = recipient

	default:
		return fmt.Errorf("unknown type in readElement: %T", e)
	}

	return nil
}

// readElements deserializes a variable number of elements in sequence.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}

	return nil
}

// Recipient union discriminants. The on-chain string variant deliberately
// sits at tag zero so that a ledger commitment is never mistaken for it.
const (
	recipientTagBitcoinAddress uint8 = 0
	recipientTagStableAddress  uint8 = 1
)

func writeRecipient(w *bytes.Buffer, recipient *staddr.Recipient) error {
	switch recipient.Kind {
	case staddr.RecipientRawChain:
		return writeElements(
			w, recipientTagBitcoinAddress, recipient.RawAddress,
		)

	case staddr.RecipientLedger:
		return writeElements(
			w, recipientTagStableAddress, recipient.Commitment,
		)

	default:
		return fmt.Errorf("unknown recipient kind %d", recipient.Kind)
	}
}

func readRecipient(r io.Reader) (*staddr.Recipient, error) {
	var tag uint8
	if err := readElement(r, &tag); err != nil {
		return nil, err
	}

	switch tag {
	case recipientTagBitcoinAddress:
		var addr string
		if err := readElement(r, &addr); err != nil {
			return nil, err
		}

		return &staddr.Recipient{
			Kind:       staddr.RecipientRawChain,
			RawAddress: addr,
		}, nil

	case recipientTagStableAddress:
		var commitment staddr.Commitment
		if err := readElement(r, &commitment); err != nil {
			return nil, err
		}

		return &staddr.Recipient{
			Kind:       staddr.RecipientLedger,
			Commitment: commitment,
		}, nil

	default:
		return nil, ErrUnknownVariant
	}
}
