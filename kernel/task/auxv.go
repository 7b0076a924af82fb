package task

// AuxType is the tag of an ELF auxiliary vector entry.
type AuxType uint64

// Auxiliary vector tags understood by the C runtime of loaded programs.
const (
	AuxNull     AuxType = 0
	AuxPHDR     AuxType = 3
	AuxPHENT    AuxType = 4
	AuxPHNUM    AuxType = 5
	AuxPageSize AuxType = 6
	AuxBase     AuxType = 7
	AuxFlags    AuxType = 8
	AuxEntry    AuxType = 9
	AuxUID      AuxType = 11
	AuxEUID     AuxType = 12
	AuxGID      AuxType = 13
	AuxEGID     AuxType = 14
	AuxPlatform AuxType = 15
	AuxHWCAP    AuxType = 16
	AuxClockTck AuxType = 17
	AuxSecure   AuxType = 23
	AuxRandom   AuxType = 25
	AuxExecFn   AuxType = 31
)

// auxEntry is a single (tag, value) pair of the auxiliary vector.
type auxEntry struct {
	tag   AuxType
	value uint64
}
