// Package rawsocket implements the EtherCAT transport over a Linux
// AF_PACKET/SOCK_RAW link-layer socket bound to the EtherCAT EtherType,
// the way the teacher's socketcan.go wraps a CAN adapter — but here the
// wire is raw Ethernet rather than a CAN bus, so the socket primitives
// come from golang.org/x/sys/unix directly (grounded on the unix-syscall
// raw-socket lifecycle in other_examples' uping sender) instead of a
// third-party CAN driver.
package rawsocket

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/samsamfire/ethercat-master/coe"
	"github.com/samsamfire/ethercat-master/frame"
	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

// Config names the primary and optional redundant network interfaces.
type Config struct {
	Interface          string
	RedundantInterface string // empty disables redundancy
	Options            transport.Options
}

// RawSocket is the Linux raw-socket Transport implementation.
type RawSocket struct {
	mu sync.Mutex

	cfg     Config
	primary *link
	redund  *link

	mailboxCounter  *coe.Counter
	mailboxErrClass transport.MailboxErrorClass
	cycleCounter    int

	emergencies map[uint16][]coe.Emergency
}

// New creates a RawSocket transport. Open() must be called before use.
func New(cfg Config) *RawSocket {
	return &RawSocket{
		cfg:            cfg,
		mailboxCounter: coe.NewCounter(),
		emergencies:    map[uint16][]coe.Emergency{},
	}
}

func (r *RawSocket) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := openLink(r.cfg.Interface)
	if err != nil {
		return fmt.Errorf("rawsocket: open primary %s: %w", r.cfg.Interface, err)
	}
	r.primary = p

	if r.cfg.Options.EnableRedundancy && r.cfg.RedundantInterface != "" {
		red, err := openLink(r.cfg.RedundantInterface)
		if err != nil {
			p.close()
			return fmt.Errorf("rawsocket: open redundant %s: %w", r.cfg.RedundantInterface, err)
		}
		r.redund = red
	}
	log.WithField("iface", r.cfg.Interface).Info("rawsocket: opened")
	return nil
}

func (r *RawSocket) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.primary != nil {
		if err := r.primary.close(); err != nil {
			errs = append(errs, err)
		}
		r.primary = nil
	}
	if r.redund != nil {
		if err := r.redund.close(); err != nil {
			errs = append(errs, err)
		}
		r.redund = nil
	}
	return errors.Join(errs...)
}

// link owns one AF_PACKET socket bound to the EtherCAT EtherType.
type link struct {
	fd      int
	ifindex int
	mac     [6]byte
}

func openLink(ifaceName string) (*link, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(frame.EtherType)))
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(frame.EtherType),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	l := &link{fd: fd, ifindex: iface.Index}
	copy(l.mac[:], iface.HardwareAddr)
	return l, nil
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

func (l *link) close() error {
	return unix.Close(l.fd)
}

func (l *link) send(b []byte) error {
	sa := &unix.SockaddrLinklayer{Protocol: htons(frame.EtherType), Ifindex: l.ifindex}
	return unix.Sendto(l.fd, b, 0, sa)
}

// recvUntil polls for frames until deadline, invoking match for each one;
// it returns nil as soon as match returns true. It returns ErrTimeout if the deadline
// elapses or ErrFrameBudget if maxFrames reads occur without a match.
func (l *link) recvUntil(deadline time.Time, maxFrames int, match func([]byte) bool) error {
	buf := make([]byte, 2048)
	frames := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return transport.ErrTimeout
		}
		if frames >= maxFrames {
			return transport.ErrFrameBudget
		}
		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		_ = unix.SetsockoptTimeval(l.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
		n, _, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return transport.ErrTimeout
			}
			return fmt.Errorf("recvfrom: %w", err)
		}
		frames++
		if match(buf[:n]) {
			return nil
		}
	}
}

// retryBackoff returns the delay before retry attempt n (n >= 1): the
// configured base doubled per attempt, capped at BackoffMaxMs. A zero base
// disables backoff entirely.
func retryBackoff(cfg transport.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffBaseMs <= 0 {
		return 0
	}
	ms := cfg.BackoffBaseMs << uint(attempt-1)
	if cfg.BackoffMaxMs > 0 && ms > cfg.BackoffMaxMs {
		ms = cfg.BackoffMaxMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *RawSocket) sendAndMatch(req frame.Request, wantPayloadLen int) (frame.Datagram, bool, error) {
	raw, err := frame.Build(r.primary.mac, req)
	if err != nil {
		return frame.Datagram{}, false, err
	}
	retries := r.cfg.Options.Retry.Retries
	if retries == 0 && r.redund != nil {
		retries = 1
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff(r.cfg.Options.Retry, attempt))
		}
		deadline := time.Now().Add(r.cfg.Options.CycleTimeout)
		var got frame.Datagram
		var matched bool
		lnk := r.primary
		usedRedundant := false
		if attempt > 0 && r.redund != nil {
			lnk = r.redund
			usedRedundant = true
		}
		if err := lnk.send(raw); err != nil {
			if attempt == retries {
				return frame.Datagram{}, usedRedundant, fmt.Errorf("rawsocket: send: %w", err)
			}
			continue
		}
		err := lnk.recvUntil(deadline, r.cfg.Options.MaxFramesPerCycle, func(b []byte) bool {
			d, perr := frame.Parse(b, req.Command, req.Index, wantPayloadLen)
			if perr != nil {
				return false
			}
			got = d
			matched = true
			return true
		})
		if err == nil && matched {
			if got.WorkingCounter < r.cfg.Options.ExpectedWorkingCounter {
				return got, usedRedundant, transport.ErrWorkingCounter
			}
			return got, usedRedundant, nil
		}
		if attempt == retries {
			return frame.Datagram{}, usedRedundant, err
		}
	}
	return frame.Datagram{}, false, transport.ErrTimeout
}

func (r *RawSocket) Exchange(outputs []byte, inputs []byte) (transport.ExchangeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.primary == nil {
		return transport.ExchangeResult{}, transport.ErrNotOpen
	}

	logical := r.cfg.Options.LogicalAddress
	wIdx := uint8(1)
	_, usedRedW, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdLWR,
		Index:   wIdx,
		Adp:     uint16(logical),
		Ado:     uint16(logical >> 16),
		Payload: outputs,
	}, len(outputs))
	if err != nil {
		return transport.ExchangeResult{}, fmt.Errorf("rawsocket: lwr: %w", err)
	}

	rIdx := uint8(2)
	readAddr := logical + uint32(len(outputs))
	got, usedRedR, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdLRD,
		Index:   rIdx,
		Adp:     uint16(readAddr),
		Ado:     uint16(readAddr >> 16),
		Payload: make([]byte, len(inputs)),
	}, len(inputs))
	if err != nil {
		return transport.ExchangeResult{}, fmt.Errorf("rawsocket: lrd: %w", err)
	}
	copy(inputs, got.Payload)

	return transport.ExchangeResult{WorkingCounter: got.WorkingCounter, UsedRedundant: usedRedW || usedRedR}, nil
}

func (r *RawSocket) RequestNetworkState(target status.SlaveState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdBWR,
		Index:   10,
		Ado:     status.RegAlControl,
		Payload: []byte{byte(target), 0},
	}, 2)
	return err
}

func (r *RawSocket) ReadNetworkState() (status.SlaveState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	got, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdBRD,
		Index:   11,
		Ado:     status.RegAlStatus,
		Payload: make([]byte, 2),
	}, 2)
	if err != nil {
		return 0, err
	}
	return status.SlaveState(got.Payload[0] & 0x0F), nil
}

func (r *RawSocket) RequestSlaveState(position uint16, target status.SlaveState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	_, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdAPWR,
		Index:   12,
		Adp:     adp,
		Ado:     status.RegAlControl,
		Payload: []byte{byte(target), 0},
	}, 2)
	return err
}

func (r *RawSocket) ReadSlaveState(position uint16) (status.SlaveState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	got, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdAPRD,
		Index:   13,
		Adp:     adp,
		Ado:     status.RegAlStatus,
		Payload: make([]byte, 2),
	}, 2)
	if err != nil {
		return 0, err
	}
	return status.SlaveState(got.Payload[0] & 0x0F), nil
}

func (r *RawSocket) ReadAlStatusCode(position uint16) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	got, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdAPRD,
		Index:   14,
		Adp:     adp,
		Ado:     status.RegAlStatus + 2,
		Payload: make([]byte, 2),
	}, 2)
	if err != nil {
		return 0, err
	}
	return uint16(got.Payload[0]) | uint16(got.Payload[1])<<8, nil
}

func (r *RawSocket) ReconfigureSlave(position uint16) error {
	for _, st := range []status.SlaveState{status.Init, status.PreOp, status.SafeOp} {
		if err := r.RequestSlaveState(position, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *RawSocket) FailoverSlave(position uint16) error {
	return r.RequestSlaveState(position, status.SafeOp)
}

func (r *RawSocket) IsRedundancyLinkHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redund != nil
}

func (r *RawSocket) ReadSii(position uint16, wordAddress uint16) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	addrPayload := make([]byte, 4)
	addrPayload[0] = byte(wordAddress)
	addrPayload[1] = byte(wordAddress >> 8)
	if _, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPWR, Index: 20, Adp: adp, Ado: status.RegSiiAddress, Payload: addrPayload}, 4); err != nil {
		return 0, err
	}
	cmdPayload := []byte{0x00, 0x01}
	if _, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPWR, Index: 21, Adp: adp, Ado: status.RegSiiControl, Payload: cmdPayload}, 2); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(r.cfg.Options.CycleTimeout)
	for time.Now().Before(deadline) {
		got, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPRD, Index: 22, Adp: adp, Ado: status.RegSiiControl, Payload: make([]byte, 2)}, 2)
		if err != nil {
			return 0, err
		}
		busy := got.Payload[0]&0x80 != 0
		if !busy {
			break
		}
	}
	got, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPRD, Index: 23, Adp: adp, Ado: status.RegSiiData, Payload: make([]byte, 4)}, 4)
	if err != nil {
		return 0, err
	}
	return uint32(got.Payload[0]) | uint32(got.Payload[1])<<8 | uint32(got.Payload[2])<<16 | uint32(got.Payload[3])<<24, nil
}

func (r *RawSocket) ReadDcSystemTime(position uint16) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	got, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPRD, Index: 30, Adp: adp, Ado: status.RegDcSystemTime, Payload: make([]byte, 8)}, 8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(got.Payload[i])
	}
	return int64(v), nil
}

func (r *RawSocket) WriteDcSystemTimeOffset(position uint16, offsetNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	adp := frame.AutoIncrementAddress(position)
	payload := make([]byte, 8)
	v := uint64(offsetNs)
	for i := 0; i < 8; i++ {
		payload[i] = byte(v)
		v >>= 8
	}
	_, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPWR, Index: 31, Adp: adp, Ado: status.RegDcSysTimeOff, Payload: payload}, 8)
	return err
}

// mailboxWrite sends one mailbox payload to a slave's SM0 (write) window.
func (r *RawSocket) mailboxWrite(position uint16, mailboxPayload []byte) error {
	adp := frame.AutoIncrementAddress(position)
	win := r.cfg.Options.MailboxWriteWindow
	_, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdAPWR,
		Index:   40,
		Adp:     adp,
		Ado:     win.Start,
		Payload: mailboxPayload,
	}, len(mailboxPayload))
	if err != nil {
		r.mailboxErrClass = transport.MailboxErrTransportIo
	}
	return err
}

// mailboxRead waits for the SM1 status bit (strict/hybrid mode) then reads
// one mailbox payload from a slave's SM1 (read) window.
func (r *RawSocket) mailboxRead(position uint16) ([]byte, error) {
	adp := frame.AutoIncrementAddress(position)
	mode := r.cfg.Options.MailboxMode
	r.cycleCounter++
	if mode == transport.ModeStrict || (mode == transport.ModeHybrid && r.cycleCounter%max1(r.cfg.Options.HybridPollEveryNCycles) != 0) {
		deadline := time.Now().Add(r.cfg.Options.CycleTimeout)
		for {
			got, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPRD, Index: 41, Adp: adp, Ado: status.RegSmStatus, Payload: make([]byte, 1)}, 1)
			if err != nil {
				r.mailboxErrClass = transport.MailboxErrTimeout
				return nil, err
			}
			if got.Payload[0]&0x08 != 0 {
				break
			}
			if time.Now().After(deadline) {
				r.mailboxErrClass = transport.MailboxErrTimeout
				return nil, transport.ErrTimeout
			}
		}
	}
	win := r.cfg.Options.MailboxReadWindow
	got, _, err := r.sendAndMatch(frame.Request{
		Command: frame.CmdAPRD,
		Index:   42,
		Adp:     adp,
		Ado:     win.Start,
		Payload: make([]byte, win.Length),
	}, int(win.Length))
	if err != nil {
		r.mailboxErrClass = transport.MailboxErrTimeout
		return nil, err
	}
	return got.Payload, nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// mailboxRoundTrip sends payload and reads back a response, discarding
// frames that fail to decode as a mailbox header, carry a stale counter or
// decode to an emergency (queued for PollEmergency instead) — spec.md §4.3,
// §7.
func (r *RawSocket) mailboxRoundTrip(position uint16, serviceType uint8, payload []byte) (coe.MailboxFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := r.mailboxCounter.Next()
	raw, err := coe.EncodeMailbox(coe.MailboxFrame{Type: serviceType, Counter: counter, Payload: payload})
	if err != nil {
		return coe.MailboxFrame{}, err
	}
	if err := r.mailboxWrite(position, raw); err != nil {
		return coe.MailboxFrame{}, err
	}

	deadline := time.Now().Add(r.cfg.Options.CycleTimeout)
	for time.Now().Before(deadline) {
		respRaw, err := r.mailboxRead(position)
		if err != nil {
			return coe.MailboxFrame{}, err
		}
		mf, err := coe.DecodeMailbox(respRaw)
		if err != nil {
			r.mailboxErrClass = transport.MailboxErrParseReject
			continue
		}
		if svc, serr := coe.ServiceID(mf.Payload); serr == nil && svc == coe.ServiceEmergency {
			if em, eerr := coe.ParseEmergency(mf.Payload); eerr == nil {
				r.emergencies[position] = append(r.emergencies[position], em)
			}
			continue
		}
		if mf.Counter != counter {
			r.mailboxErrClass = transport.MailboxErrStaleCounter
			continue
		}
		r.mailboxErrClass = transport.MailboxErrNone
		return mf, nil
	}
	r.mailboxErrClass = transport.MailboxErrTimeout
	return coe.MailboxFrame{}, transport.ErrTimeout
}

func (r *RawSocket) SdoUpload(position uint16, index uint16, subIndex uint8) ([]byte, error) {
	req := coe.BuildUploadRequest(index, subIndex)
	mf, err := r.mailboxRoundTrip(position, coe.ServiceType, req)
	if err != nil {
		return nil, err
	}
	resp, err := coe.ParseUploadResponse(mf.Payload)
	if err != nil {
		var abort *coe.AbortError
		if errors.As(err, &abort) {
			r.mu.Lock()
			r.mailboxErrClass = transport.MailboxErrAbort
			r.mu.Unlock()
		}
		return nil, err
	}
	if resp.Expedited {
		return resp.Data, nil
	}

	data := append([]byte(nil), resp.Data...)
	toggle := false
	for uint32(len(data)) < resp.TotalSize {
		segReq := coe.BuildUploadSegmentRequest(toggle)
		mf, err := r.mailboxRoundTrip(position, coe.ServiceType, segReq)
		if err != nil {
			return nil, err
		}
		seg, err := coe.ParseUploadSegment(mf.Payload)
		if err != nil {
			return nil, err
		}
		data = append(data, seg.Data...)
		toggle = !toggle
		if seg.Last {
			break
		}
	}
	return data, nil
}

func (r *RawSocket) SdoDownload(position uint16, index uint16, subIndex uint8, data []byte) error {
	req := coe.BuildDownloadInitiate(index, subIndex, data)
	mf, err := r.mailboxRoundTrip(position, coe.ServiceType, req)
	if err != nil {
		return err
	}
	if _, err := coe.ParseDownloadAck(mf.Payload); err != nil {
		return err
	}
	if len(data) <= 4 {
		return nil
	}
	toggle := false
	for offset := 0; offset < len(data); {
		end := offset + 7
		last := end >= len(data)
		if last {
			end = len(data)
		}
		segReq, err := coe.BuildDownloadSegment(data[offset:end], toggle, last)
		if err != nil {
			return err
		}
		mf, err = r.mailboxRoundTrip(position, coe.ServiceType, segReq)
		if err != nil {
			return err
		}
		if _, err := coe.ParseDownloadAck(mf.Payload); err != nil {
			return err
		}
		toggle = !toggle
		offset = end
	}
	return nil
}

func (r *RawSocket) ConfigurePdo(position uint16, writes []coe.SdoWrite) error {
	for _, w := range writes {
		if err := r.SdoDownload(position, w.Index, w.SubIndex, w.Data); err != nil {
			return fmt.Errorf("rawsocket: pdo config %04X:%02X: %w", w.Index, w.SubIndex, err)
		}
	}
	return nil
}

func (r *RawSocket) PollEmergency(position uint16) []coe.Emergency {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.emergencies[position]
	delete(r.emergencies, position)
	return ev
}

func (r *RawSocket) DiscoverTopology(maxPositions int) ([]transport.SlaveProbe, error) {
	var probes []transport.SlaveProbe
	for pos := 0; pos < maxPositions; pos++ {
		position := uint16(pos)
		adp := frame.AutoIncrementAddress(position)
		got, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPRD, Index: 50, Adp: adp, Ado: status.RegEscType, Payload: make([]byte, 2)}, 2)
		if err != nil || got.WorkingCounter == 0 {
			// Position 0 may legitimately fail silently on the first scan
			// after a cold boot; later positions report the same way.
			continue
		}
		probes = append(probes, transport.SlaveProbe{
			Position:    position,
			Online:      true,
			EscType:     got.Payload[0],
			EscRevision: got.Payload[1],
		})
	}
	return probes, nil
}

func (r *RawSocket) ConfigureProcessImage(mapping []transport.ProcessImageMapping) error {
	for _, m := range mapping {
		adp := frame.AutoIncrementAddress(m.Position)
		out := make([]byte, 16)
		out[0] = byte(m.OutputLogical)
		out[1] = byte(m.OutputLogical >> 8)
		out[2] = byte(m.OutputLogical >> 16)
		out[3] = byte(m.OutputLogical >> 24)
		out[4] = byte(m.OutputBytes)
		out[5] = byte(m.OutputBytes >> 8)
		out[8] = byte(m.InputLogical)
		out[9] = byte(m.InputLogical >> 8)
		out[10] = byte(m.InputLogical >> 16)
		out[11] = byte(m.InputLogical >> 24)
		out[12] = byte(m.InputBytes)
		out[13] = byte(m.InputBytes >> 8)
		if _, _, err := r.sendAndMatch(frame.Request{Command: frame.CmdAPWR, Index: 60, Adp: adp, Ado: 0x0600, Payload: out}, len(out)); err != nil {
			return fmt.Errorf("rawsocket: configure process image for position %d: %w", m.Position, err)
		}
	}
	return nil
}

// FoeRead drives a FoE READ_REQUEST/DATA/ACK transaction, retrying on BUSY
// and rejecting out-of-sequence packet numbers
// (linux_raw_socket_transport_foe_eoe.cpp:55-143).
func (r *RawSocket) FoeRead(position uint16, fileName string) ([]byte, error) {
	mf, err := r.mailboxRoundTrip(position, coe.MailboxTypeFoe, coe.BuildFoEReadRequest(fileName, 0))
	if err != nil {
		return nil, err
	}
	var out []byte
	expectedPacket := uint32(1)
	const maxDataPerPacket = 512
	for {
		seg, err := coe.ParseFoE(mf.Payload)
		if err != nil {
			return nil, err
		}
		if seg.Err != nil {
			return nil, seg.Err
		}
		if seg.Busy {
			time.Sleep(time.Millisecond)
			raw, err := r.mailboxRead(position)
			if err != nil {
				return nil, err
			}
			if mf, err = coe.DecodeMailbox(raw); err != nil {
				return nil, err
			}
			continue
		}
		if seg.PacketNumber != expectedPacket {
			return nil, fmt.Errorf("rawsocket: foe packet sequence mismatch: got %d want %d", seg.PacketNumber, expectedPacket)
		}
		out = append(out, seg.Data...)

		r.mu.Lock()
		ackRaw, _ := coe.EncodeMailbox(coe.MailboxFrame{Type: coe.MailboxTypeFoe, Counter: r.mailboxCounter.Next(), Payload: coe.BuildFoEAck(seg.PacketNumber)})
		r.mu.Unlock()
		if err := r.mailboxWrite(position, ackRaw); err != nil {
			return nil, err
		}
		expectedPacket++
		if len(seg.Data) < maxDataPerPacket {
			return out, nil
		}

		raw, err := r.mailboxRead(position)
		if err != nil {
			return nil, err
		}
		if mf, err = coe.DecodeMailbox(raw); err != nil {
			return nil, err
		}
	}
}

// FoeWrite drives a FoE WRITE_REQUEST followed by one or more ACKed DATA
// segments, ending on the first segment shorter than the chunk size — the
// same "short chunk ends the transfer" rule as FoeRead
// (linux_raw_socket_transport_foe_eoe.cpp:145-247).
func (r *RawSocket) FoeWrite(position uint16, fileName string, data []byte) error {
	mf, err := r.mailboxRoundTrip(position, coe.MailboxTypeFoe, coe.BuildFoEWriteRequest(fileName, 0))
	if err != nil {
		return err
	}
	if ack, err := coe.ParseFoE(mf.Payload); err != nil {
		return err
	} else if ack.Err != nil {
		return ack.Err
	}

	const chunk = 512
	packetNumber := uint32(1)
	offset := 0
	for {
		end := offset + chunk
		if end > len(data) {
			end = len(data)
		}
		mf, err := r.mailboxRoundTrip(position, coe.MailboxTypeFoe, coe.BuildFoEData(packetNumber, data[offset:end]))
		if err != nil {
			return err
		}
		ack, err := coe.ParseFoE(mf.Payload)
		if err != nil {
			return err
		}
		if ack.Err != nil {
			return ack.Err
		}
		if ack.PacketNumber != packetNumber {
			return fmt.Errorf("rawsocket: foe ack packet mismatch: got %d want %d", ack.PacketNumber, packetNumber)
		}
		chunkLen := end - offset
		offset = end
		packetNumber++
		if chunkLen < chunk {
			return nil
		}
	}
}

// EoeSend writes ethernetFrame as a single mailbox payload: EoE is pure
// frame passthrough, not a fragmented transfer (coe/foe.go).
func (r *RawSocket) EoeSend(position uint16, ethernetFrame []byte) error {
	r.mu.Lock()
	raw, err := coe.EncodeMailbox(coe.MailboxFrame{Type: coe.MailboxTypeEoe, Counter: r.mailboxCounter.Next(), Payload: ethernetFrame})
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if win := r.cfg.Options.MailboxWriteWindow; win.Length > 0 && len(raw) > int(win.Length) {
		return fmt.Errorf("rawsocket: eoe frame exceeds mailbox write window")
	}
	return r.mailboxWrite(position, raw)
}

// EoeReceive reads one mailbox frame and returns its payload as the
// received Ethernet frame, unmodified.
func (r *RawSocket) EoeReceive(position uint16) ([]byte, error) {
	raw, err := r.mailboxRead(position)
	if err != nil {
		return nil, err
	}
	mf, err := coe.DecodeMailbox(raw)
	if err != nil {
		return nil, err
	}
	return mf.Payload, nil
}

func (r *RawSocket) LastMailboxErrorClass() transport.MailboxErrorClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mailboxErrClass
}

var _ transport.Transport = (*RawSocket)(nil)
