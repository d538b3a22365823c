package core

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

func PackUint(order binary.ByteOrder, size int, buf []byte, val uint64) ([]byte, error) {
	if buf == nil {
		buf = make([]byte, size)
	} else if len(buf) < size {
		return nil, errors.New("buffer too small")
	}
	switch size {
	case 1:
		buf[0] = byte(val)
	case 2:
		order.PutUint16(buf, uint16(val))
	case 4:
		order.PutUint32(buf, uint32(val))
	case 8:
		order.PutUint64(buf, val)
	default:
		return nil, errors.Errorf("unsupported uint size: %d", size)
	}
	return buf[:size], nil
}

func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	if len(buf) < size {
		return 0, errors.New("buffer too small")
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	case 4:
		return uint64(order.Uint32(buf)), nil
	case 8:
		return order.Uint64(buf), nil
	default:
		return 0, errors.Errorf("unsupported uint size: %d", size)
	}
}
