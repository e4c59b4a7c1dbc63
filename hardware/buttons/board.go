package buttons

import (
	"encoding/binary"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	gpio "github.com/temoto/gpio-cdev-go"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/machkit/panel/log2"
)

const boardTag = "button-board"
const DefaultQueryInterval = 2 * time.Millisecond
const DefaultRetransmitCount = 50

// StateHandler receives parsed state frames on the board read goroutine.
type StateHandler func(now time.Time, oid, remoteAck byte, batch []byte)

type BoardStat struct {
	Tx    uint32
	Rx    uint32
	Error uint32
}

// Board is the SPI link to the remote pin-sampler. The board samples its
// configured groups every query interval and raises the notify line when
// it holds unacknowledged state.
type Board struct {
	Log     *log2.Log
	Name    string
	alive   *alive.Alive
	txlk    sync.Mutex
	idSeq   uint32
	spiPort spi.PortCloser
	spiConn spi.Conn
	pinChip gpio.Chiper
	onState StateHandler
	stat    BoardStat
}

func NewBoard(name, spiBus, notifyPinChip, notifyPinName string, log *log2.Log) (*Board, error) {
	notifyLine, err := strconv.ParseUint(notifyPinName, 10, 16)
	if err != nil {
		return nil, errors.Annotate(err, "notify pin must be number")
	}

	if _, err = host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	spiPort, err := spireg.Open(spiBus)
	if err != nil {
		return nil, errors.Annotate(err, "SPI open")
	}
	spiConn, err := spiPort.Connect(200*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		spiPort.Close()
		return nil, errors.Annotate(err, "SPI connect")
	}
	pinChip, err := gpio.Open(notifyPinChip, boardTag)
	if err != nil {
		spiPort.Close()
		return nil, errors.Annotatef(err, "notify pin open chip=%s", notifyPinChip)
	}
	pinev, err := pinChip.GetLineEvent(uint32(notifyLine), 0,
		gpio.GPIOEVENT_REQUEST_RISING_EDGE, boardTag)
	if err != nil {
		spiPort.Close()
		pinChip.Close()
		return nil, errors.Annotate(err, "notify line event")
	}

	self := &Board{
		Log:     log,
		Name:    name,
		alive:   alive.NewAlive(),
		spiPort: spiPort,
		spiConn: spiConn,
		pinChip: pinChip,
	}
	if !self.alive.Add(1) {
		panic("code error board alive")
	}
	go self.readLoop(pinev)
	return self, nil
}

func (self *Board) SetStateHandler(h StateHandler) { self.onState = h }

func (self *Board) Close() error {
	self.alive.Stop()
	self.alive.Wait()
	errs := []error{
		self.spiPort.Close(),
		self.pinChip.Close(),
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (self *Board) Stat() BoardStat { return self.stat }

// ConfigureGroup declares a sample group on the board.
func (self *Board) ConfigureGroup(g *Group) error {
	data := make([]byte, 0, 2+2*len(g.Pins))
	data = append(data, g.Oid, byte(len(g.Pins)))
	for _, p := range g.Pins {
		line, err := strconv.ParseUint(p.Line, 10, 8)
		if err != nil {
			return errors.NotValidf("board=%s pin='%s' must be line number", self.Name, p.Line)
		}
		var flags byte
		if p.Pullup {
			flags |= 1
		}
		data = append(data, byte(line), flags)
	}
	return self.tx(CmdConfigGroup, data...)
}

// StartQuery arms periodic sampling with a bounded retransmit count.
func (self *Board) StartQuery(g *Group, interval time.Duration, retransmit int) error {
	if interval <= 0 {
		interval = DefaultQueryInterval
	}
	if retransmit <= 0 {
		retransmit = DefaultRetransmitCount
	}
	var data [4]byte
	data[0] = g.Oid
	binary.BigEndian.PutUint16(data[1:3], uint16(interval/time.Millisecond))
	data[3] = byte(retransmit)
	return self.tx(CmdQuery, data[:]...)
}

// Ack confirms a received sample count. Safe to repeat: the board treats
// ack as idempotent under retransmission.
func (self *Board) Ack(oid, count byte) error {
	return self.tx(CmdAck, oid, count)
}

func (self *Board) tx(header Header, data ...byte) error {
	self.txlk.Lock()
	defer self.txlk.Unlock()

	id := byte(atomic.AddUint32(&self.idSeq, 1))
	f := NewFrame(id, header, data...)
	var buf [MaxFrameLength]byte
	copy(buf[:], f.Bytes())
	atomic.AddUint32(&self.stat.Tx, 1)
	if err := self.spiConn.Tx(buf[:], buf[:]); err != nil {
		atomic.AddUint32(&self.stat.Error, 1)
		return errors.Annotatef(err, "%s tx header=%s", boardTag, header.String())
	}
	return nil
}

func (self *Board) readLoop(pinev gpio.Eventer) {
	defer self.alive.Done()
	stopch := self.alive.StopChan()

	for self.alive.IsRunning() {
		select {
		case <-stopch:
			return
		default:
		}
		_, err := pinev.Wait(time.Second)
		if err != nil {
			if gpio.IsTimeout(err) {
				continue
			}
			self.Log.Errorf("%s notify wait err=%v", boardTag, err)
			atomic.AddUint32(&self.stat.Error, 1)
			continue
		}
		self.drain()
	}
}

// drain reads frames until the board reports an empty buffer.
func (self *Board) drain() {
	for {
		var buf [MaxFrameLength]byte
		self.txlk.Lock()
		err := self.spiConn.Tx(buf[:], buf[:])
		self.txlk.Unlock()
		if err != nil {
			self.Log.Errorf("%s read err=%v", boardTag, err)
			atomic.AddUint32(&self.stat.Error, 1)
			return
		}
		if buf[0] == 0 {
			return
		}
		var f Frame
		if err = f.Parse(buf[:]); err != nil {
			self.Log.Errorf("%s parse buf=%x err=%v", boardTag, buf, err)
			atomic.AddUint32(&self.stat.Error, 1)
			return
		}
		atomic.AddUint32(&self.stat.Rx, 1)
		self.handleFrame(&f)
	}
}

func (self *Board) handleFrame(f *Frame) {
	switch f.Header {
	case RespState:
		data := f.Data()
		if len(data) < 2 {
			self.Log.Errorf("%s state frame too short %s", boardTag, f.String())
			return
		}
		if self.onState != nil {
			self.onState(time.Now(), data[0], data[1], data[2:])
		}
	case RespReset:
		self.Log.Infof("%s reset flags=%x", boardTag, f.Data())
	case RespOk:
	case RespError:
		self.Log.Errorf("%s board error frame %s", boardTag, f.String())
	}
}
