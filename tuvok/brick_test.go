package tuvok

import "testing"

func TestBrickKeyBytes(t *testing.T) {
	k := BrickKey{Timestep: 3, LOD: 1, Index: 7821}
	k2, err := BrickKeyFromBytes(k.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if k2 != k {
		t.Errorf("expected %s, got %s", k, k2)
	}
	if _, err := BrickKeyFromBytes([]byte{1, 2}); err == nil {
		t.Errorf("expected error on short key")
	}

	// keys must sort by lod before index
	a := BrickKey{LOD: 0, Index: 900}.Bytes()
	b := BrickKey{LOD: 1, Index: 0}.Bytes()
	if string(a) >= string(b) {
		t.Errorf("expected lod 0 key to sort before lod 1 key")
	}
}

func TestVec3(t *testing.T) {
	v := Vec3{30, 64, 1}
	if v.Volume() != 30*64 {
		t.Errorf("bad volume %d", v.Volume())
	}
	if p := v.NextPowerOfTwo(); p != (Vec3{32, 64, 1}) {
		t.Errorf("bad next power of two: %s", p)
	}
	if v.IsPowerOfTwo() {
		t.Errorf("%s is not all powers of two", v)
	}
	if d := (Vec3{100, 64, 65}).CeilDiv(Vec3{32, 32, 32}); d != (Vec3{4, 2, 3}) {
		t.Errorf("bad ceil div: %s", d)
	}
	layout := Vec3{4, 2, 3}
	for i := uint64(0); i < layout.Volume(); i++ {
		if j := LinearIndex(BrickCoord(i, layout), layout); j != i {
			t.Errorf("index %d round-tripped to %d", i, j)
		}
	}
}
