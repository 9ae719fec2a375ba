package uefi

// x64 UEFI table layouts. Function pointers are kept as uintptr and invoked
// through efiCall.

const systemTableSignature = 0x5453595320494249 // "IBI SYST"

type tableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

type systemTable struct {
	Hdr                  tableHeader
	FirmwareVendor       uintptr
	FirmwareRevision     uint32
	ConsoleInHandle      uintptr
	ConIn                uintptr
	ConsoleOutHandle     uintptr
	ConOut               uintptr
	StandardErrorHandle  uintptr
	StdErr               uintptr
	RuntimeServices      uintptr
	BootServices         uintptr
	NumberOfTableEntries uint64
	ConfigurationTable   uintptr
}

type bootServices struct {
	Hdr                        tableHeader
	RaiseTPL                   uintptr
	RestoreTPL                 uintptr
	AllocatePages              uintptr
	FreePages                  uintptr
	GetMemoryMap               uintptr
	AllocatePool               uintptr
	FreePool                   uintptr
	CreateEvent                uintptr
	SetTimer                   uintptr
	WaitForEvent               uintptr
	SignalEvent                uintptr
	CloseEvent                 uintptr
	CheckEvent                 uintptr
	InstallProtocolInterface   uintptr
	ReinstallProtocolInterface uintptr
	UninstallProtocolInterface uintptr
	HandleProtocol             uintptr
	Reserved                   uintptr
	RegisterProtocolNotify     uintptr
	LocateHandle               uintptr
	LocateDevicePath           uintptr
	InstallConfigurationTable  uintptr
	LoadImage                  uintptr
	StartImage                 uintptr
	Exit                       uintptr
	UnloadImage                uintptr
	ExitBootServices           uintptr
	GetNextMonotonicCount      uintptr
	Stall                      uintptr
	SetWatchdogTimer           uintptr
	ConnectController          uintptr
	DisconnectController       uintptr
	OpenProtocol               uintptr
	CloseProtocol              uintptr
	OpenProtocolInformation    uintptr
	ProtocolsPerHandle         uintptr
	LocateHandleBuffer         uintptr
	LocateProtocol             uintptr
}

type runtimeServices struct {
	Hdr                  tableHeader
	GetTime              uintptr
	SetTime              uintptr
	GetWakeupTime        uintptr
	SetWakeupTime        uintptr
	SetVirtualAddressMap uintptr
	ConvertPointer       uintptr
}

// memoryDescriptor is EFI_MEMORY_DESCRIPTOR. The firmware may use a larger
// stride than its size.
type memoryDescriptor struct {
	Type          uint32
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// memoryRuntime marks regions that runtime services need after the
// virtual address map switch.
const memoryRuntime = uint64(1) << 63

// GUID is an EFI_GUID.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

var graphicsOutputProtocolGUID = GUID{0x9042a9de, 0x23dc, 0x4a38, [8]byte{0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a}}

type graphicsOutputProtocol struct {
	QueryMode uintptr
	SetMode   uintptr
	Blt       uintptr
	Mode      *graphicsOutputMode
}

type graphicsOutputMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            *graphicsModeInfo
	SizeOfInfo      uint64
	FrameBufferBase uint64
	FrameBufferSize uint64
}

type graphicsModeInfo struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          uint32
	PixelInformation     [4]uint32
	PixelsPerScanLine    uint32
}
