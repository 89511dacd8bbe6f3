package tuvok

import "testing"

func TestCommandArgs(t *testing.T) {
	cmd := Command{"quantize", "in.raw", "type=int16", "out.raw", "bits=8", "extra"}
	var in, out string
	overflow := cmd.CommandArgs(&in, &out)
	if in != "in.raw" || out != "out.raw" {
		t.Errorf("bad args: %q %q", in, out)
	}
	if len(overflow) != 1 || overflow[0] != "extra" {
		t.Errorf("bad overflow: %v", overflow)
	}
	bits, err := cmd.UintParameter(KeyBits, 12)
	if err != nil || bits != 8 {
		t.Errorf("expected bits 8, got %d (%v)", bits, err)
	}
	skip, err := cmd.UintParameter(KeySkip, 0)
	if err != nil || skip != 0 {
		t.Errorf("expected default skip, got %d (%v)", skip, err)
	}
	size, err := Command{"convert", "size=64,32,16"}.Vec3Parameter(KeySize, Vec3{})
	if err != nil || size != (Vec3{64, 32, 16}) {
		t.Errorf("bad size %s (%v)", size, err)
	}
}
