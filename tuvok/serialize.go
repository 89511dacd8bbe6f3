/*
	This file supports serialization/deserialization and compression of brick data.
*/

package tuvok

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the format of compression for storing data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = iota
	Snappy
	Zstd
	Gzip
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "No compression"
	case Snappy:
		return "Go Snappy compression"
	case Zstd:
		return "Zstandard compression"
	case Gzip:
		return "Gzip compression"
	default:
		return "Unknown compression"
	}
}

// ParseCompression returns the Compression for "none", "snappy", "zstd" or "gzip".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "uncompressed":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	case "gzip":
		return Gzip, nil
	}
	return Uncompressed, fmt.Errorf("unknown compression %q", s)
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = iota
	CRC32
)

func (checksum Checksum) String() string {
	switch checksum {
	case NoChecksum:
		return "No checksum"
	case CRC32:
		return "CRC32 checksum"
	default:
		return "Unknown checksum"
	}
}

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

func DecodeSerializationFormat(s SerializationFormat) (compress Compression, checksum Checksum) {
	compress = Compression(uint8(s) >> 5)
	checksum = Checksum((uint8(s) >> 3) & 0x03)
	return
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// SerializeData serializes a slice of bytes using optional compression, checksum.
func SerializeData(data []byte, compress Compression, checksum Checksum) (s []byte, err error) {
	var buffer bytes.Buffer

	// Store the requested compression and checksum
	format := EncodeSerializationFormat(compress, checksum)
	if err = binary.Write(&buffer, binary.LittleEndian, format); err != nil {
		return
	}

	var byteData []byte
	switch compress {
	case Uncompressed:
		byteData = data
	case Snappy:
		byteData = snappy.Encode(nil, data)
	case Zstd:
		var enc *zstd.Encoder
		if enc, _, err = zstdCodecs(); err == nil {
			byteData = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
		}
	case Gzip:
		var gzBuf bytes.Buffer
		zw := gzip.NewWriter(&gzBuf)
		if _, err = zw.Write(data); err == nil {
			err = zw.Close()
		}
		byteData = gzBuf.Bytes()
	default:
		err = fmt.Errorf("illegal compression (%s) during serialization", compress)
	}
	if err != nil {
		return
	}

	switch checksum {
	case NoChecksum:
	case CRC32:
		crcChecksum := crc32.ChecksumIEEE(byteData)
		err = binary.Write(&buffer, binary.LittleEndian, crcChecksum)
	default:
		err = fmt.Errorf("illegal checksum (%s) in SerializeData()", checksum)
	}
	if err == nil {
		// Data is written last, after any checksum, so we don't have to
		// worry about length when deserializing.
		_, err = buffer.Write(byteData)
		if err == nil {
			s = buffer.Bytes()
		}
	}
	return
}

// DeserializeData deserializes a slice of bytes using stored compression, checksum.
// If uncompress parameter is false, the data is not uncompressed.
func DeserializeData(s []byte, uncompress bool) (data []byte, compress Compression, err error) {
	buffer := bytes.NewBuffer(s)

	var format SerializationFormat
	if err = binary.Read(buffer, binary.LittleEndian, &format); err != nil {
		return
	}
	var checksum Checksum
	compress, checksum = DecodeSerializationFormat(format)

	var storedCrc32 uint32
	switch checksum {
	case NoChecksum:
	case CRC32:
		err = binary.Read(buffer, binary.LittleEndian, &storedCrc32)
	default:
		err = fmt.Errorf("illegal checksum in deserializing data")
	}
	if err != nil {
		return
	}

	cdata := buffer.Bytes()
	if checksum == CRC32 {
		if crcChecksum := crc32.ChecksumIEEE(cdata); crcChecksum != storedCrc32 {
			err = fmt.Errorf("bad checksum: stored %x got %x", storedCrc32, crcChecksum)
			return
		}
	}

	if !uncompress {
		data = cdata
		return
	}
	switch compress {
	case Uncompressed:
		data = cdata
	case Snappy:
		data, err = snappy.Decode(nil, cdata)
	case Zstd:
		var dec *zstd.Decoder
		if _, dec, err = zstdCodecs(); err == nil {
			data, err = dec.DecodeAll(cdata, nil)
		}
	case Gzip:
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(cdata)); err == nil {
			data, err = io.ReadAll(zr)
			zr.Close()
		}
	default:
		err = fmt.Errorf("illegal compression format (%d) in deserialization", compress)
	}
	return
}
