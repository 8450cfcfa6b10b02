package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samsamfire/ethercat-master/coe"
	"github.com/samsamfire/ethercat-master/status"
)

// MockSlave is one simulated slave's state inside a Mock transport.
type MockSlave struct {
	Position     uint16
	VendorId     uint32
	ProductCode  uint32
	State        status.SlaveState
	AlStatusCode uint16
	Online       bool
}

// Mock is an in-memory Transport standing in for link-layer hardware in
// tests, the way the teacher's virtual.go VirtualBus stands in for a CAN
// adapter.
type Mock struct {
	mu sync.Mutex

	opened        bool
	networkState  status.SlaveState
	slaves        map[uint16]*MockSlave
	inputImage    []byte
	lastOutputs   []byte
	wkc           uint16
	exchangeFails int
	lastExchangeErr error

	sdoObjects map[uint16]map[uint8][]byte

	mailboxErrClass   MailboxErrorClass
	forceSdoTimeout   bool
	emergencyQueue    map[uint16][]coe.Emergency

	redundancyHealthy bool
	usedRedundantNext bool

	siiWords map[uint16]map[uint16]uint32
	dcOffset map[uint16]int64

	foeFiles map[string][]byte
	eoeInbox map[uint16][]byte

	processImage []ProcessImageMapping
}

// NewMock creates an unopened Mock transport.
func NewMock() *Mock {
	return &Mock{
		networkState:      status.Init,
		slaves:            map[uint16]*MockSlave{},
		sdoObjects:        map[uint16]map[uint8][]byte{},
		emergencyQueue:    map[uint16][]coe.Emergency{},
		redundancyHealthy: true,
		siiWords:          map[uint16]map[uint16]uint32{},
		dcOffset:          map[uint16]int64{},
		foeFiles:          map[string][]byte{},
		eoeInbox:          map[uint16][]byte{},
	}
}

// AddSlave registers a simulated slave at position.
func (m *Mock) AddSlave(position uint16, vendorId, productCode uint32) *MockSlave {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &MockSlave{Position: position, VendorId: vendorId, ProductCode: productCode, State: status.Init, Online: true}
	m.slaves[position] = s
	return s
}

// SetSlaveOnline marks a slave present/absent for topology discovery.
func (m *Mock) SetSlaveOnline(position uint16, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slaves[position]; ok {
		s.Online = online
	}
}

// SetAlStatusCode injects an AL status code for a slave's next diagnostics
// read (spec.md S2).
func (m *Mock) SetAlStatusCode(position uint16, code uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slaves[position]; ok {
		s.AlStatusCode = code
	}
}

// SetSlaveState forces a slave's reported state.
func (m *Mock) SetSlaveState(position uint16, st status.SlaveState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slaves[position]; ok {
		s.State = st
	}
}

// SetInputImage sets the bytes Exchange will copy into the caller's input
// buffer on the next call (spec.md S1 "set InputA=1 on transport side").
func (m *Mock) SetInputImage(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputImage = append([]byte(nil), data...)
}

// LastOutputs returns the outputs buffer observed on the most recent
// Exchange call (spec.md S1).
func (m *Mock) LastOutputs() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastOutputs...)
}

// InjectExchangeFailures makes the next n Exchange calls fail.
func (m *Mock) InjectExchangeFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeFails = n
}

// SetWorkingCounter sets the WKC returned by a successful Exchange.
func (m *Mock) SetWorkingCounter(wkc uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wkc = wkc
}

// SetSdoObject pre-loads a (index, subIndex) object value returned by
// SdoUpload and accepted by SdoDownload.
func (m *Mock) SetSdoObject(index uint16, subIndex uint8, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sdoObjects[index] == nil {
		m.sdoObjects[index] = map[uint8][]byte{}
	}
	m.sdoObjects[index][subIndex] = append([]byte(nil), data...)
}

// ForceSdoTimeout makes every SDO transaction fail as a mailbox timeout
// (spec.md S6).
func (m *Mock) ForceSdoTimeout(force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceSdoTimeout = force
	if force {
		m.mailboxErrClass = MailboxErrTimeout
	}
}

// QueueEmergency enqueues an emergency to be returned by the next
// PollEmergency call for position.
func (m *Mock) QueueEmergency(position uint16, e coe.Emergency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyQueue[position] = append(m.emergencyQueue[position], e)
}

// SetRedundancyHealthy controls IsRedundancyLinkHealthy.
func (m *Mock) SetRedundancyHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redundancyHealthy = healthy
}

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

func (m *Mock) Exchange(outputs []byte, inputs []byte) (ExchangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOutputs = append([]byte(nil), outputs...)
	if m.exchangeFails > 0 {
		m.exchangeFails--
		m.lastExchangeErr = fmt.Errorf("mock: injected exchange failure")
		return ExchangeResult{}, m.lastExchangeErr
	}
	n := copy(inputs, m.inputImage)
	_ = n
	wkc := m.wkc
	if wkc == 0 {
		wkc = 1
	}
	return ExchangeResult{WorkingCounter: wkc, UsedRedundant: m.usedRedundantNext}, nil
}

func (m *Mock) RequestNetworkState(target status.SlaveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkState = target
	for _, s := range m.slaves {
		s.State = target
	}
	return nil
}

func (m *Mock) ReadNetworkState() (status.SlaveState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkState, nil
}

func (m *Mock) RequestSlaveState(position uint16, target status.SlaveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slaves[position]
	if !ok {
		return fmt.Errorf("mock: unknown slave position %d", position)
	}
	s.State = target
	return nil
}

func (m *Mock) ReadSlaveState(position uint16) (status.SlaveState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slaves[position]
	if !ok {
		return 0, fmt.Errorf("mock: unknown slave position %d", position)
	}
	return s.State, nil
}

func (m *Mock) ReadAlStatusCode(position uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slaves[position]
	if !ok {
		return 0, fmt.Errorf("mock: unknown slave position %d", position)
	}
	return s.AlStatusCode, nil
}

func (m *Mock) ReconfigureSlave(position uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slaves[position]
	if !ok {
		return fmt.Errorf("mock: unknown slave position %d", position)
	}
	s.State = status.PreOp
	s.State = status.SafeOp
	return nil
}

func (m *Mock) FailoverSlave(position uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slaves[position]
	if !ok {
		return fmt.Errorf("mock: unknown slave position %d", position)
	}
	s.State = status.SafeOp
	return nil
}

func (m *Mock) SdoUpload(position uint16, index uint16, subIndex uint8) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceSdoTimeout {
		m.mailboxErrClass = MailboxErrTimeout
		return nil, ErrTimeout
	}
	sub, ok := m.sdoObjects[index]
	if !ok {
		m.mailboxErrClass = MailboxErrAbort
		return nil, &coe.AbortError{Index: index, SubIndex: subIndex, Code: 0x06020000}
	}
	data, ok := sub[subIndex]
	if !ok {
		m.mailboxErrClass = MailboxErrAbort
		return nil, &coe.AbortError{Index: index, SubIndex: subIndex, Code: 0x06090011}
	}
	m.mailboxErrClass = MailboxErrNone
	return append([]byte(nil), data...), nil
}

func (m *Mock) SdoDownload(position uint16, index uint16, subIndex uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceSdoTimeout {
		m.mailboxErrClass = MailboxErrTimeout
		return ErrTimeout
	}
	if m.sdoObjects[index] == nil {
		m.sdoObjects[index] = map[uint8][]byte{}
	}
	m.sdoObjects[index][subIndex] = append([]byte(nil), data...)
	m.mailboxErrClass = MailboxErrNone
	return nil
}

func (m *Mock) ConfigurePdo(position uint16, writes []coe.SdoWrite) error {
	for _, w := range writes {
		if err := m.SdoDownload(position, w.Index, w.SubIndex, w.Data); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mock) PollEmergency(position uint16) []coe.Emergency {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.emergencyQueue[position]
	delete(m.emergencyQueue, position)
	return q
}

func (m *Mock) DiscoverTopology(maxPositions int) ([]SlaveProbe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	positions := make([]uint16, 0, len(m.slaves))
	for p := range m.slaves {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	probes := make([]SlaveProbe, 0, len(positions))
	for _, p := range positions {
		if int(p) >= maxPositions {
			break
		}
		s := m.slaves[p]
		probes = append(probes, SlaveProbe{
			Position:        p,
			Online:          s.Online,
			VendorId:        s.VendorId,
			ProductCode:     s.ProductCode,
			IdentityFromCoE: s.Online,
		})
	}
	return probes, nil
}

func (m *Mock) IsRedundancyLinkHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redundancyHealthy
}

func (m *Mock) ConfigureProcessImage(mapping []ProcessImageMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processImage = mapping
	return nil
}

func (m *Mock) ReadSii(position uint16, wordAddress uint16) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if words, ok := m.siiWords[position]; ok {
		if v, ok := words[wordAddress]; ok {
			return v, nil
		}
	}
	return 0, nil
}

func (m *Mock) ReadDcSystemTime(position uint16) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dcOffset[position], nil
}

func (m *Mock) WriteDcSystemTimeOffset(position uint16, offsetNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dcOffset[position] = offsetNs
	return nil
}

func (m *Mock) FoeRead(position uint16, fileName string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.foeFiles[fileName]
	if !ok {
		return nil, fmt.Errorf("mock: no such foe file %q", fileName)
	}
	return append([]byte(nil), data...), nil
}

func (m *Mock) FoeWrite(position uint16, fileName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foeFiles[fileName] = append([]byte(nil), data...)
	return nil
}

func (m *Mock) EoeSend(position uint16, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eoeInbox[position] = append([]byte(nil), frame...)
	return nil
}

func (m *Mock) EoeReceive(position uint16) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.eoeInbox[position]
	if !ok {
		return nil, nil
	}
	delete(m.eoeInbox, position)
	return data, nil
}

func (m *Mock) LastMailboxErrorClass() MailboxErrorClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mailboxErrClass
}

var _ Transport = (*Mock)(nil)
