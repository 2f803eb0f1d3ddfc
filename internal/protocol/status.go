package protocol

import "fmt"

// Status is the result code returned by GET_STATUS
type Status byte

const (
	StatusSuccess     Status = 0x40
	StatusUnknownCmd  Status = 0x41
	StatusInvalidCmd  Status = 0x42
	StatusInvalidAddr Status = 0x43
	StatusFlashFail   Status = 0x44
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUnknownCmd:
		return "UNKNOWN_CMD"
	case StatusInvalidCmd:
		return "INVALID_CMD"
	case StatusInvalidAddr:
		return "INVALID_ADDR"
	case StatusFlashFail:
		return "FLASH_FAIL"
	default:
		return fmt.Sprintf("Status(0x%02X)", byte(s))
	}
}

// ParseStatus maps a status byte to a known Status
func ParseStatus(b byte) (Status, error) {
	switch s := Status(b); s {
	case StatusSuccess, StatusUnknownCmd, StatusInvalidCmd, StatusInvalidAddr, StatusFlashFail:
		return s, nil
	}
	return 0, &UnexpectedStatusError{Code: b}
}
