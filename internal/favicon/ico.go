package favicon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
)

const (
	icoHeaderLen   = 6
	icoDirEntryLen = 16
	bmpFileHdrLen  = 14

	// MaxSide bounds either dimension of a decoded favicon.
	MaxSide = 1024
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00", decodeICO, decodeICOConfig)
}

type icoEntry struct {
	width, height int
	bitCount      int
	size          uint32
	offset        uint32
}

// decodeICO decodes the largest image in an ICO container. PNG payloads are
// decoded directly; DIB payloads are handed to the BMP decoder after a file
// header is synthesized and the doubled XOR+AND height is halved.
func decodeICO(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	entry, err := largestEntry(data)
	if err != nil {
		return nil, err
	}
	payload := data[entry.offset : entry.offset+entry.size]

	if bytes.HasPrefix(payload, pngMagic) {
		cfg, err := png.DecodeConfig(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if err := checkDimensions(cfg); err != nil {
			return nil, err
		}
		return png.Decode(bytes.NewReader(payload))
	}
	bmpData, err := dibToBMP(payload)
	if err != nil {
		return nil, err
	}
	cfg, err := bmp.DecodeConfig(bytes.NewReader(bmpData))
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(cfg); err != nil {
		return nil, err
	}
	return bmp.Decode(bytes.NewReader(bmpData))
}

// checkDimensions rejects images whose header declares more than MaxSide
// pixels on either side, before any pixel buffer is allocated.
func checkDimensions(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxSide || cfg.Height > MaxSide {
		return fmt.Errorf("image is %dx%d, limit is %dx%d", cfg.Width, cfg.Height, MaxSide, MaxSide)
	}
	return nil
}

func decodeICOConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	entry, err := largestEntry(data)
	if err != nil {
		return image.Config{}, err
	}
	payload := data[entry.offset : entry.offset+entry.size]
	if bytes.HasPrefix(payload, pngMagic) {
		return png.DecodeConfig(bytes.NewReader(payload))
	}
	bmpData, err := dibToBMP(payload)
	if err != nil {
		return image.Config{}, err
	}
	return bmp.DecodeConfig(bytes.NewReader(bmpData))
}

func largestEntry(data []byte) (icoEntry, error) {
	if len(data) < icoHeaderLen {
		return icoEntry{}, errors.New("ico: short header")
	}
	if binary.LittleEndian.Uint16(data[0:2]) != 0 || binary.LittleEndian.Uint16(data[2:4]) != 1 {
		return icoEntry{}, errors.New("ico: not an icon file")
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if count == 0 {
		return icoEntry{}, errors.New("ico: no images")
	}
	if len(data) < icoHeaderLen+count*icoDirEntryLen {
		return icoEntry{}, errors.New("ico: truncated directory")
	}

	var best icoEntry
	found := false
	for i := 0; i < count; i++ {
		d := data[icoHeaderLen+i*icoDirEntryLen:]
		e := icoEntry{
			width:    dimension(d[0]),
			height:   dimension(d[1]),
			bitCount: int(binary.LittleEndian.Uint16(d[6:8])),
			size:     binary.LittleEndian.Uint32(d[8:12]),
			offset:   binary.LittleEndian.Uint32(d[12:16]),
		}
		if uint64(e.offset)+uint64(e.size) > uint64(len(data)) || e.size == 0 {
			continue
		}
		if !found || e.width*e.height > best.width*best.height ||
			(e.width*e.height == best.width*best.height && e.bitCount > best.bitCount) {
			best = e
			found = true
		}
	}
	if !found {
		return icoEntry{}, errors.New("ico: no readable images")
	}
	return best, nil
}

// dimension maps the one-byte directory size to pixels; 0 means 256.
func dimension(b byte) int {
	if b == 0 {
		return 256
	}
	return int(b)
}

// dibToBMP prefixes a BITMAPFILEHEADER to an icon DIB and rewrites the
// height to cover only the colour (XOR) bitmap.
func dibToBMP(dib []byte) ([]byte, error) {
	if len(dib) < 40 {
		return nil, errors.New("ico: short bitmap header")
	}
	infoLen := binary.LittleEndian.Uint32(dib[0:4])
	if infoLen < 40 || int(infoLen) > len(dib) {
		return nil, fmt.Errorf("ico: unsupported bitmap header size %d", infoLen)
	}

	header := make([]byte, len(dib))
	copy(header, dib)

	height := int32(binary.LittleEndian.Uint32(header[8:12]))
	binary.LittleEndian.PutUint32(header[8:12], uint32(height/2))

	bitCount := binary.LittleEndian.Uint16(header[14:16])
	colorsUsed := binary.LittleEndian.Uint32(header[32:36])
	if bitCount <= 8 && colorsUsed == 0 {
		colorsUsed = 1 << bitCount
	}
	if bitCount > 8 {
		colorsUsed = 0
	}
	binary.LittleEndian.PutUint32(header[32:36], colorsUsed)

	pixelOffset := uint32(bmpFileHdrLen) + infoLen + colorsUsed*4
	out := make([]byte, bmpFileHdrLen, bmpFileHdrLen+len(header))
	out[0], out[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(out[2:6], uint32(bmpFileHdrLen+len(header)))
	binary.LittleEndian.PutUint32(out[10:14], pixelOffset)
	return append(out, header...), nil
}
