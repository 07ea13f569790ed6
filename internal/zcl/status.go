package zcl

import "fmt"

// Status is a ZCL status code as carried in command responses.
type Status uint8

const (
	StatusSuccess            Status = 0x00
	StatusFailure            Status = 0x01
	StatusUnsupportedCommand Status = 0x81
	StatusUnsupportedAttr    Status = 0x86
	StatusInvalidValue       Status = 0x87
	StatusReadOnly           Status = 0x88
	StatusInvalidDataType    Status = 0x8D
	StatusNotFound           Status = 0x8B
	StatusUnsupportedCluster Status = 0xC3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusUnsupportedCommand:
		return "UNSUP_COMMAND"
	case StatusUnsupportedAttr:
		return "UNSUP_ATTRIBUTE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusInvalidDataType:
		return "INVALID_DATA_TYPE"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnsupportedCluster:
		return "UNSUP_CLUSTER"
	}
	return fmt.Sprintf("0x%02X", uint8(s))
}
