package buttons

import (
	"encoding/hex"
	"fmt"

	"github.com/juju/errors"

	"github.com/machkit/panel/crc"
)

// Wire format to the pin-sampler board, little frames over SPI:
// [length, id, header, payload..., crc8(p93 over all preceding bytes)]
const frameOverhead = 4
const MaxFrameLength = 40

type Header byte

const (
	CmdConfigGroup Header = 0x01 // payload: oid, pin count, then (line, flags) pairs
	CmdQuery       Header = 0x02 // payload: oid, interval_ms u16 BE, retransmit u8
	CmdAck         Header = 0x03 // payload: oid, count
	CmdStatus      Header = 0x04

	RespOk    Header = 0x80
	RespState Header = 0x81 // payload: oid, ack_count, then N sample bytes
	RespReset Header = 0x82
	RespError Header = 0xff
)

func (h Header) String() string {
	switch h {
	case CmdConfigGroup:
		return "config_group"
	case CmdQuery:
		return "query"
	case CmdAck:
		return "ack"
	case CmdStatus:
		return "status"
	case RespOk:
		return "ok"
	case RespState:
		return "state"
	case RespReset:
		return "reset"
	case RespError:
		return "error"
	}
	return fmt.Sprintf("unknown:%02x", byte(h))
}

type Frame struct {
	buf     [MaxFrameLength]byte
	Id      byte
	Header  Header
	dataLen uint8
}

func NewFrame(id byte, header Header, data ...byte) Frame {
	if len(data) > MaxFrameLength-frameOverhead {
		panic(fmt.Sprintf("code error frame data too long=%d", len(data)))
	}
	f := Frame{Id: id, Header: header, dataLen: uint8(len(data))}
	plen := frameOverhead + f.dataLen
	f.buf[0] = plen
	f.buf[1] = f.Id
	f.buf[2] = byte(f.Header)
	copy(f.buf[3:], data)
	f.buf[plen-1] = crc.CRC8_p93_n(0, f.buf[:plen-1])
	return f
}

func (self *Frame) Data() []byte {
	if self.dataLen == 0 {
		return nil
	}
	return self.buf[3 : 3+self.dataLen]
}

func (self *Frame) Bytes() []byte {
	return self.buf[:frameOverhead+self.dataLen]
}

// Overwrites frame state.
func (self *Frame) Parse(b []byte) error {
	if len(b) == 0 {
		return errors.NotValidf("frame empty")
	}
	length := b[0]
	if length < frameOverhead {
		return errors.NotValidf("frame=%x claims length=%d < min=%d", b, length, frameOverhead)
	}
	if int(length) > len(self.buf) {
		return errors.NotValidf("frame=%x claims length=%d > max=%d", b, length, len(self.buf))
	}
	if int(length) > len(b) {
		return errors.NotValidf("frame=%x claims length=%d > input=%d", b, length, len(b))
	}
	b = b[:length]
	crcIn := b[length-1]
	crcLocal := crc.CRC8_p93_n(0, b[:length-1])
	if crcIn != crcLocal {
		return errors.NotValidf("frame=%x crc=%02x actual=%02x", b, crcIn, crcLocal)
	}
	switch Header(b[2]) {
	case RespOk, RespState, RespReset, RespError:
	default:
		return errors.NotValidf("frame=%x header=%02x", b, b[2])
	}
	self.Id = b[1]
	self.Header = Header(b[2])
	copy(self.buf[:], b)
	self.dataLen = length - frameOverhead
	return nil
}

func (self *Frame) String() string {
	return fmt.Sprintf("id=%02x header=%s data=%s",
		self.Id, self.Header.String(), hex.EncodeToString(self.Data()))
}
