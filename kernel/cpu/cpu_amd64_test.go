package cpu

import "testing"

func TestIsIntel(t *testing.T) {
	defer func() {
		cpuidFn = ID
	}()

	specs := []struct {
		eax, ebx, ecx, edx uint32
		exp                bool
	}{
		// CPUID output from an Intel CPU
		{0xd, 0x756e6547, 0x6c65746e, 0x49656e69, true},
		// CPUID output from an AMD Athlon CPU
		{0x1, 68747541, 0x444d4163, 0x69746e65, false},
	}

	for specIndex, spec := range specs {
		cpuidFn = func(_ uint32) (uint32, uint32, uint32, uint32) {
			return spec.eax, spec.ebx, spec.ecx, spec.edx
		}

		if got := IsIntel(); got != spec.exp {
			t.Errorf("[spec %d] expected IsIntel to return %t; got %t", specIndex, spec.exp, got)
		}
	}
}

func TestExtendedFeatureProbes(t *testing.T) {
	defer func() {
		cpuidFn = ID
	}()

	specs := []struct {
		maxExtLeaf uint32
		extEDX     uint32
		expNX      bool
		expHuge1G  bool
	}{
		// extended leaf not available
		{0x80000000, 0xffffffff, false, false},
		{0x80000008, 0, false, false},
		{0x80000008, 1 << 20, true, false},
		{0x80000008, 1 << 26, false, true},
		{0x80000008, 1<<20 | 1<<26, true, true},
	}

	for specIndex, spec := range specs {
		cpuidFn = func(leaf uint32) (uint32, uint32, uint32, uint32) {
			switch leaf {
			case 0x80000000:
				return spec.maxExtLeaf, 0, 0, 0
			case 0x80000001:
				return 0, 0, 0, spec.extEDX
			default:
				t.Fatalf("unexpected cpuid leaf 0x%x", leaf)
				return 0, 0, 0, 0
			}
		}

		if got := HasNoExecute(); got != spec.expNX {
			t.Errorf("[spec %d] expected HasNoExecute to return %t; got %t", specIndex, spec.expNX, got)
		}

		if got := HasHugePages1G(); got != spec.expHuge1G {
			t.Errorf("[spec %d] expected HasHugePages1G to return %t; got %t", specIndex, spec.expHuge1G, got)
		}
	}
}

func TestFeatures(t *testing.T) {
	defer func() {
		cpuidFn = ID
	}()

	cpuidFn = func(leaf uint32) (uint32, uint32, uint32, uint32) {
		if leaf == 0x80000000 {
			return 0x80000008, 0, 0, 0
		}
		return 0, 0, 0, 1 << 20
	}

	features := Features()
	seen := make(map[string]bool)
	for _, f := range features {
		if f.Name == "" {
			t.Fatal("expected every feature to be named")
		}
		if seen[f.Name] {
			t.Fatalf("feature %q reported twice", f.Name)
		}
		seen[f.Name] = true
	}

	if !seen["nx"] || !seen["pdpe1gb"] {
		t.Fatal("expected the paging features to be part of the report")
	}

	for _, f := range features {
		switch f.Name {
		case "nx":
			if !f.Present {
				t.Error("expected nx to be reported as present")
			}
		case "pdpe1gb":
			if f.Present {
				t.Error("expected pdpe1gb to be reported as missing")
			}
		}
	}
}
