package cpu

import xcpu "golang.org/x/sys/cpu"

// Feature describes an optional instruction set extension and whether the
// running CPU provides it.
type Feature struct {
	Name    string
	Present bool
}

// FeatureCount is the number of entries returned by Features.
const FeatureCount = 10

// Features returns the instruction set extensions the kernel reports at
// startup. The result is a fixed-size array so callers can iterate it without
// allocating.
func Features() [FeatureCount]Feature {
	return [FeatureCount]Feature{
		{"sse2", xcpu.X86.HasSSE2},
		{"sse4.2", xcpu.X86.HasSSE42},
		{"popcnt", xcpu.X86.HasPOPCNT},
		{"avx", xcpu.X86.HasAVX},
		{"avx2", xcpu.X86.HasAVX2},
		{"aes", xcpu.X86.HasAES},
		{"rdrand", xcpu.X86.HasRDRAND},
		{"erms", xcpu.X86.HasERMS},
		{"nx", HasNoExecute()},
		{"pdpe1gb", HasHugePages1G()},
	}
}
