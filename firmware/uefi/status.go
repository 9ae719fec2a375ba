package uefi

import "kestrel/kernel"

// Status is an EFI_STATUS value returned by every firmware call.
type Status uintptr

const (
	statusSuccess     Status = 0
	statusErrorBit    Status = 1 << 63
	statusBufferSmall        = statusErrorBit | 5
)

var (
	statusErrors = [...]*kernel.Error{
		1:  {Module: "uefi", Message: "image failed to load"},
		2:  {Module: "uefi", Message: "invalid parameter"},
		3:  {Module: "uefi", Message: "operation not supported"},
		4:  {Module: "uefi", Message: "bad buffer size"},
		5:  {Module: "uefi", Message: "buffer too small"},
		6:  {Module: "uefi", Message: "not ready"},
		7:  {Module: "uefi", Message: "device error"},
		8:  {Module: "uefi", Message: "write protected"},
		9:  {Module: "uefi", Message: "out of resources"},
		14: {Module: "uefi", Message: "not found"},
		15: {Module: "uefi", Message: "access denied"},
		21: {Module: "uefi", Message: "aborted"},
	}

	errUnknownStatus = &kernel.Error{Module: "uefi", Message: "unknown error status"}
)

// Err returns nil for success and warnings and a kernel.Error describing
// the failure otherwise.
func (s Status) Err() *kernel.Error {
	if s&statusErrorBit == 0 {
		return nil
	}

	code := s &^ statusErrorBit
	if code < Status(len(statusErrors)) && statusErrors[code] != nil {
		return statusErrors[code]
	}

	return errUnknownStatus
}
