package iso7816

import "fmt"

// READ RECORD (INS 'B2') reads from a record file. P2 holds the SFI of the
// file on b8-b4 (0 for the current EF) and on b3-b1 how P1 is read: as a
// record identifier with an occurrence, or as a record number.

// RecordMode is b3-b1 of the P2 of READ RECORD.
type RecordMode byte

const (
	RecordIDFirst     RecordMode = 0b000
	RecordIDLast      RecordMode = 0b001
	RecordIDNext      RecordMode = 0b010
	RecordIDPrevious  RecordMode = 0b011
	RecordNumber      RecordMode = 0b100
	RecordsFromNumber RecordMode = 0b101
	RecordsToNumber   RecordMode = 0b110
)

var recordModeNames = map[RecordMode]string{
	RecordIDFirst:     "first record with ID P1",
	RecordIDLast:      "last record with ID P1",
	RecordIDNext:      "next record with ID P1",
	RecordIDPrevious:  "previous record with ID P1",
	RecordNumber:      "record number P1",
	RecordsFromNumber: "records from P1 to last",
	RecordsToNumber:   "records from last to P1",
}

func (m RecordMode) String() string {
	if n, ok := recordModeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("RFU (%03b)", byte(m))
}

// ParseRecordP2 splits the P2 of a record command.
func ParseRecordP2(p2 byte) (sfi byte, mode RecordMode) {
	return p2 >> 3, RecordMode(p2 & 0x07)
}

// NewReadRecordCommand builds a READ RECORD of the file with the given SFI,
// asking for up to 256 bytes.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode RecordMode) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_RECORD)
	return NewCommandAPDU(cla, ins, p1, sfi<<3|byte(mode), nil, MaxShortLe)
}

// ReadRecord reads record number rec.
func ReadRecord(cla Class, sfi, rec byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, rec, RecordNumber)
}

// ReadAllRecords reads every record from number first on.
func ReadAllRecords(cla Class, sfi, first byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, first, RecordsFromNumber)
}
