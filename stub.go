package main

// The rt0 code stores the two arguments the firmware passes to the image
// entry point here before calling main.
var (
	imageHandle uintptr
	systemTable uintptr
)
