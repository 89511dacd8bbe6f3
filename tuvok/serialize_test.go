package tuvok

import (
	"bytes"
	"testing"
)

func TestSerializeData(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 13)
	}
	for _, compress := range []Compression{Uncompressed, Snappy, Zstd, Gzip} {
		s, err := SerializeData(data, compress, CRC32)
		if err != nil {
			t.Fatalf("%s: %v", compress, err)
		}
		got, c, err := DeserializeData(s, true)
		if err != nil {
			t.Fatalf("%s: %v", compress, err)
		}
		if c != compress {
			t.Errorf("expected stored compression %s, got %s", compress, c)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s: data mismatch after deserialization", compress)
		}
	}
}

func TestSerializeBadChecksum(t *testing.T) {
	s, err := SerializeData([]byte("some brick data"), Snappy, CRC32)
	if err != nil {
		t.Fatal(err)
	}
	s[len(s)-1] ^= 0xff
	if _, _, err := DeserializeData(s, true); err == nil {
		t.Errorf("expected checksum failure on corrupted data")
	}
}
