package sdspi

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/embeddedgo/sdfat/block"
)

// SD commands (SPI subset), per SanDisk's Secure Digital Card product
// manual and this package's source material.
const (
	cmdGoIdleState        = 0
	cmdSendOpCond         = 41 // ACMD41
	cmdSendIfCond         = 8
	cmdSendCSD            = 9
	cmdSendCID            = 10
	cmdStopTransmission   = 12
	cmdReadSingleBlock    = 17
	cmdReadMultipleBlock  = 18
	cmdWriteBlock         = 24
	cmdWriteMultipleBlock = 25
	cmdAppCmd             = 55
	cmdReadOCR            = 58
)

const (
	ifCondCheckPattern = 0xAA
	ifCondVoltageRange = 1 << 8 // 2.7-3.6V
	acmd41HCS          = 1 << 30

	crcCMD0 = 0x95
	crcCMD8 = 0x87
	crcOff  = 0xFF

	tokenDataStart    = 0xFE
	tokenMultiWrStart = 0xFC
	tokenMultiWrStop  = 0xFD

	dataResponseMask     = 0b1110
	dataResponseAccepted = 0b010 << 1
	dataResponseCRCErr   = 0b101 << 1
	dataResponseWriteErr = 0b110 << 1

	acmd41MaxAttempts = 10
	acmd41Delay       = 20 * time.Millisecond
	dataTokenTimeout  = 200 * time.Millisecond
	busyTimeout       = 500 * time.Millisecond
)

// CardType distinguishes the two SD addressing conventions: SDSC takes a
// byte address in every command argument, SDHC takes a block index.
type CardType int

const (
	SDSC CardType = iota
	SDHC
)

// Card is an SD card in SPI mode: the power-on init FSM plus
// read_sectors/write_sectors over CMD17/18/24/25/12. It implements
// block.Device: ReadSectors/WriteSectors take a 0-based absolute sector
// number and a count.
type Card struct {
	bus   Bus
	clock Clock
	log   *slog.Logger

	ready    bool
	cardType CardType
	ocr      uint32
	cid      [16]byte
	csd      [16]byte
}

// NewCard builds a Card over bus, using clock to bound every wait the init
// FSM and data-transfer loops perform. A nil log discards.
func NewCard(bus Bus, clock Clock, log *slog.Logger) *Card {
	if clock == nil {
		clock = realClock{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Card{bus: bus, clock: clock, log: log}
}

// Capacity reports which addressing convention Init determined the card
// uses. Valid only after a successful Init.
func (c *Card) Capacity() CardType { return c.cardType }

// CID returns the raw 16-byte Card Identification register read during
// Init.
func (c *Card) CID() [16]byte { return c.cid }

// CSD returns the raw 16-byte Card-Specific Data register read during
// Init. Decode it with ParseCSD.
func (c *Card) CSD() [16]byte { return c.csd }

// Init runs the power-on sequence: sync clocks, CMD0, CMD8, CMD58,
// CMD55+ACMD41 until the card leaves idle, CMD10/CMD9 identification reads,
// then a final CMD58 to classify SDSC vs SDHC from the OCR's CCS bit.
// READY (accepting ReadSectors/WriteSectors) is reached only on a nil
// return.
func (c *Card) Init(ctx context.Context) error {
	c.ready = false

	dummy := make([]byte, 20)
	for i := range dummy {
		dummy[i] = 0xFF
	}

	c.bus.Deselect()
	if err := c.bus.Send(dummy[:10]); err != nil { // >= 74 dummy clocks, CS high
		return wrapIO(err)
	}

	c.bus.Select()
	ok := false
	defer func() {
		if !ok {
			c.bus.Deselect()
		}
	}()

	if err := c.bus.Send(dummy); err != nil { // sync with CS low
		return wrapIO(err)
	}

	r1, err := c.sendCommand(cmdGoIdleState, 0)
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x01 {
		c.log.Warn("sdspi: CMD0 did not return idle", "r1", r1)
		return IdleFail
	}

	r1, err = c.sendCommand(cmdSendIfCond, ifCondVoltageRange|ifCondCheckPattern)
	if err != nil {
		return wrapIO(err)
	}
	echo, err := c.readR3R7()
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x01 || echo[2] != byte(ifCondVoltageRange>>8) || echo[3] != ifCondCheckPattern {
		c.log.Warn("sdspi: CMD8 voltage/pattern mismatch", "r1", r1, "echo", echo)
		return IfCondMismatch
	}

	r1, err = c.sendCommand(cmdReadOCR, 0)
	if err != nil {
		return wrapIO(err)
	}
	if _, err := c.readR3R7(); err != nil {
		return wrapIO(err)
	}
	if r1 != 0x01 {
		return OCRFail
	}

	left := true
	for attempt := 0; attempt < acmd41MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.sendCommand(cmdAppCmd, 0); err != nil {
			return wrapIO(err)
		}
		r1, err = c.sendCommand(cmdSendOpCond, acmd41HCS)
		if err != nil {
			return wrapIO(err)
		}
		c.clock.Sleep(acmd41Delay)
		if r1 == 0x00 {
			left = false
			break
		}
	}
	if left {
		return ACMD41Timeout
	}

	r1, err = c.sendCommand(cmdSendCID, 0)
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x00 {
		return ReadR1
	}
	cid, err := c.readDataBlock(16)
	if err != nil {
		return err
	}
	copy(c.cid[:], cid)

	r1, err = c.sendCommand(cmdSendCSD, 0)
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x00 {
		return ReadR1
	}
	csd, err := c.readDataBlock(16)
	if err != nil {
		return err
	}
	copy(c.csd[:], csd)

	r1, err = c.sendCommand(cmdReadOCR, 0)
	if err != nil {
		return wrapIO(err)
	}
	ocrBytes, err := c.readR3R7()
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x00 {
		return OCRFail
	}
	c.ocr = binary.BigEndian.Uint32(ocrBytes[:])
	if c.ocr&(1<<30) != 0 {
		c.cardType = SDHC
	} else {
		c.cardType = SDSC
	}

	c.log.Info("sdspi: card ready", "type", c.cardType)
	c.ready = true
	ok = true
	c.bus.Deselect()
	return nil
}

func (c *Card) addr(sector uint32) uint32 {
	if c.cardType == SDSC {
		return sector * 512
	}
	return sector
}

// ReadSectors reads count consecutive 512-byte sectors starting at sector
// into dst. A single sector uses CMD17 with no termination step; more than
// one uses CMD18, terminated by CMD12.
func (c *Card) ReadSectors(dst []byte, sector uint32, count int) error {
	if !c.ready {
		return CardRejected
	}
	c.bus.Select()
	defer c.bus.Deselect()

	multi := count > 1
	cmd := byte(cmdReadSingleBlock)
	if multi {
		cmd = cmdReadMultipleBlock
	}

	r1, err := c.sendCommand(cmd, c.addr(sector))
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x00 {
		return ReadR1
	}

	for i := 0; i < count; i++ {
		block, err := c.readDataBlock(512)
		if err != nil {
			return err
		}
		copy(dst[i*512:(i+1)*512], block)
	}

	if !multi {
		return nil
	}
	if _, err := c.sendCommand(cmdStopTransmission, 0); err != nil {
		return wrapIO(err)
	}
	if _, err := c.recvByte(); err != nil { // documented stuffed-byte quirk after CMD12
		return wrapIO(err)
	}
	return c.waitBusy()
}

// WriteSectors writes count consecutive 512-byte sectors starting at
// sector from src. A single sector uses CMD24; more than one uses CMD25,
// terminated by the multi-write stop token.
func (c *Card) WriteSectors(src []byte, sector uint32, count int) error {
	if !c.ready {
		return CardRejected
	}
	c.bus.Select()
	defer c.bus.Deselect()

	multi := count > 1
	cmd := byte(cmdWriteBlock)
	startToken := byte(tokenDataStart)
	if multi {
		cmd = cmdWriteMultipleBlock
		startToken = tokenMultiWrStart
	}

	r1, err := c.sendCommand(cmd, c.addr(sector))
	if err != nil {
		return wrapIO(err)
	}
	if r1 != 0x00 {
		return ReadR1
	}
	if multi {
		if _, err := c.recvByte(); err != nil { // filler byte
			return wrapIO(err)
		}
	}

	for i := 0; i < count; i++ {
		if err := c.writeDataBlock(startToken, src[i*512:(i+1)*512]); err != nil {
			return err
		}
	}

	if !multi {
		return nil
	}
	if err := c.bus.Send([]byte{tokenMultiWrStop}); err != nil {
		return wrapIO(err)
	}
	if _, err := c.recvByte(); err != nil { // filler byte
		return wrapIO(err)
	}
	return c.waitBusy()
}

// sendCommand frames and transmits a 6-byte command and returns its R1
// token.
func (c *Card) sendCommand(cmd byte, arg uint32) (byte, error) {
	frame := make([]byte, 6)
	frame[0] = 0x40 | cmd
	binary.BigEndian.PutUint32(frame[1:5], arg)
	switch cmd {
	case cmdGoIdleState:
		frame[5] = crcCMD0
	case cmdSendIfCond:
		frame[5] = crcCMD8
	default:
		frame[5] = crcOff
	}
	if err := c.bus.Send(frame); err != nil {
		return 0, err
	}
	if _, err := c.recvByte(); err != nil { // the card answers on the second byte
		return 0, err
	}
	return c.recvByte()
}

// readR3R7 reads the 4 big-endian bytes following an R1 token for R3
// (READ_OCR) and R7 (SEND_IF_COND) responses.
func (c *Card) readR3R7() ([4]byte, error) {
	var out [4]byte
	buf := make([]byte, 4)
	if err := c.bus.Recv(buf); err != nil {
		return out, err
	}
	copy(out[:], buf)
	return out, nil
}

func (c *Card) recvByte() (byte, error) {
	return c.bus.Xfer(0xFF)
}

// waitDataToken clocks dummy bytes until the 0xFE data token appears or
// dataTokenTimeout elapses.
func (c *Card) waitDataToken() (byte, error) {
	deadline := c.clock.Now().Add(dataTokenTimeout)
	for {
		b, err := c.recvByte()
		if err != nil {
			return 0, wrapIO(err)
		}
		if b == tokenDataStart {
			return b, nil
		}
		if c.clock.Now().After(deadline) {
			return 0, DataTokenTimeout
		}
	}
}

// readDataBlock waits for the start token, reads n payload bytes, then
// discards the trailing 2 CRC bytes.
func (c *Card) readDataBlock(n int) ([]byte, error) {
	if _, err := c.waitDataToken(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := c.bus.Recv(buf); err != nil {
		return nil, wrapIO(err)
	}
	if _, err := recvBytes(c.bus, 2); err != nil { // CRC, discarded
		return nil, wrapIO(err)
	}
	return buf, nil
}

// writeDataBlock sends a start token, 512 bytes of payload, 2 dummy CRC
// bytes, then checks the data-response token and waits for the busy
// release. Never auto-retries on rejection.
func (c *Card) writeDataBlock(startToken byte, data []byte) error {
	if err := c.bus.Send([]byte{startToken}); err != nil {
		return wrapIO(err)
	}
	if err := c.bus.Send(data); err != nil {
		return wrapIO(err)
	}
	if err := c.bus.Send([]byte{0xFF, 0xFF}); err != nil { // dummy CRC
		return wrapIO(err)
	}
	resp, err := c.recvByte()
	if err != nil {
		return wrapIO(err)
	}
	switch resp & dataResponseMask {
	case dataResponseAccepted:
	case dataResponseCRCErr, dataResponseWriteErr:
		return WriteRejected
	default:
		return WriteRejected
	}
	return c.waitBusy()
}

// waitBusy polls until the card releases the line (a non-zero byte) or
// busyTimeout elapses.
func (c *Card) waitBusy() error {
	deadline := c.clock.Now().Add(busyTimeout)
	for {
		b, err := c.recvByte()
		if err != nil {
			return wrapIO(err)
		}
		if b != 0x00 {
			return nil
		}
		if c.clock.Now().After(deadline) {
			return CardTimeout
		}
	}
}

// wrapIO wraps a transport-level failure so it carries both this package's
// own Io sentinel and block.ErrIO: a Volume mounted over a real Card fails
// errors.Is(err, block.ErrIO) checks the same way a ramdisk or filedisk
// failure does, per the block.Device contract every ReadSectors/WriteSectors
// implementation honors.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return block.WrapIO(fmt.Errorf("%w: %w", Io, err))
}
