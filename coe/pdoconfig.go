package coe

// PdoDirection selects which mapping object base and SM assignment object a
// PDO entry targets.
type PdoDirection int

const (
	DirectionRx PdoDirection = iota // outputs, mapping base 0x1600, SM assignment 0x1C12
	DirectionTx                     // inputs, mapping base 0x1A00, SM assignment 0x1C13
)

// PdoEntry is one mapped object dictionary entry: index, sub-index and bit
// length, packed into a single 32-bit mapping word on the wire.
type PdoEntry struct {
	Index    uint16
	SubIndex uint8
	BitLen   uint8
}

func (e PdoEntry) pack() []byte {
	word := uint32(e.Index) | uint32(e.SubIndex)<<16 | uint32(e.BitLen)<<24
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

// SdoWrite is one (index, subIndex, data) SDO download the caller must
// perform, in order, to configure a PDO mapping.
type SdoWrite struct {
	Index    uint16
	SubIndex uint8
	Data     []byte
}

// BuildPdoMappingWrites returns the ordered SDO download sequence needed to
// configure a PDO: disable mapping (subindex 0 = 0), write each entry into
// subindices 1..N, re-enable (subindex 0 = N), then point the sync-manager
// assignment object at mappingIndex.
//
// mappingIndex is the RxPDO/TxPDO mapping object (e.g. 0x1600, 0x1A00);
// smAssignIndex is 0x1C12 for Rx or 0x1C13 for Tx.
func BuildPdoMappingWrites(mappingIndex, smAssignIndex uint16, entries []PdoEntry) []SdoWrite {
	writes := make([]SdoWrite, 0, len(entries)+3)
	writes = append(writes, SdoWrite{Index: mappingIndex, SubIndex: 0, Data: []byte{0}})
	for i, e := range entries {
		writes = append(writes, SdoWrite{
			Index:    mappingIndex,
			SubIndex: uint8(i + 1),
			Data:     e.pack(),
		})
	}
	writes = append(writes, SdoWrite{Index: mappingIndex, SubIndex: 0, Data: []byte{uint8(len(entries))}})
	writes = append(writes, SdoWrite{Index: smAssignIndex, SubIndex: 1, Data: []byte{
		byte(mappingIndex), byte(mappingIndex >> 8),
	}})
	return writes
}

// RxPdoBase and TxPdoBase are the default mapping object bases used when the
// caller has not selected an alternate PDO slot.
const (
	RxPdoBase     uint16 = 0x1600
	TxPdoBase     uint16 = 0x1A00
	RxSmAssignIdx uint16 = 0x1C12
	TxSmAssignIdx uint16 = 0x1C13
)
