package main

import (
	"kestrel/firmware/uefi"
	"kestrel/kernel/device/serial"
	"kestrel/kernel/diag"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/kmain"
	"kestrel/loader"
)

// main is invoked by the rt0 code of the UEFI image once a minimal g0 is set
// up on the firmware-provided stack. It works as a trampoline into the loader
// and names kmain.Kmain as the kernel entry point, which also keeps the
// compiler from discarding the kernel code.
//
// main is not expected to return; the loader transfers control to the kernel
// on its own stack.
func main() {
	com1 := serial.Port(serial.COM1)
	com1.Init()
	diag.SetSerial(com1)
	kfmt.SetOutputSink(diag.Writer())

	fw, err := uefi.New(imageHandle, systemTable)
	if err != nil {
		panic(err)
	}

	loader.NewSequencer(fw, loader.DefaultConfig()).Run(kmain.Kmain)
}
