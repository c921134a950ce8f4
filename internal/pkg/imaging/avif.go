package imaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// maxAVIFHeader bounds how much of the stream is read looking for the meta box
const maxAVIFHeader = 1 << 20

var errAVIFPixels = errors.New("avif: pixel decoding is not supported")

func init() {
	for _, brand := range []string{"avif", "avis", "mif1"} {
		image.RegisterFormat("avif", "????ftyp"+brand, decodeAVIF, decodeAVIFConfig)
	}
}

func decodeAVIF(r io.Reader) (image.Image, error) {
	return nil, errAVIFPixels
}

// decodeAVIFConfig reads the displayed size from the item properties:
// the largest ispe box, swapped when irot rotates by a quarter turn.
func decodeAVIFConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAVIFHeader))
	if err != nil {
		return image.Config{}, err
	}

	meta, err := findBox(data, "meta")
	if err != nil {
		return image.Config{}, err
	}
	if len(meta) < 4 {
		return image.Config{}, errors.New("avif: short meta box")
	}
	iprp, err := findBox(meta[4:], "iprp")
	if err != nil {
		return image.Config{}, err
	}
	ipco, err := findBox(iprp, "ipco")
	if err != nil {
		return image.Config{}, err
	}

	var width, height int
	rotated := false
	for rest := ipco; len(rest) > 0; {
		typ, body, next, err := nextBox(rest)
		if err != nil {
			return image.Config{}, err
		}
		rest = next

		switch typ {
		case "ispe":
			if len(body) < 12 {
				return image.Config{}, errors.New("avif: short ispe box")
			}
			w := int(binary.BigEndian.Uint32(body[4:8]))
			h := int(binary.BigEndian.Uint32(body[8:12]))
			if w*h > width*height {
				width, height = w, h
			}
		case "irot":
			if len(body) > 0 && body[0]&1 == 1 {
				rotated = true
			}
		}
	}

	if width == 0 || height == 0 {
		return image.Config{}, errors.New("avif: no image size property")
	}
	if rotated {
		width, height = height, width
	}
	return image.Config{ColorModel: color.RGBAModel, Width: width, Height: height}, nil
}

func findBox(data []byte, want string) ([]byte, error) {
	for rest := data; len(rest) > 0; {
		typ, body, next, err := nextBox(rest)
		if err != nil {
			return nil, err
		}
		if typ == want {
			return body, nil
		}
		rest = next
	}
	return nil, fmt.Errorf("avif: %s box not found", want)
}

func nextBox(data []byte) (typ string, body, rest []byte, err error) {
	if len(data) < 8 {
		return "", nil, nil, errors.New("avif: truncated box header")
	}
	size := uint64(binary.BigEndian.Uint32(data[0:4]))
	typ = string(data[4:8])
	header := uint64(8)

	switch size {
	case 0:
		size = uint64(len(data))
	case 1:
		if len(data) < 16 {
			return "", nil, nil, errors.New("avif: truncated box header")
		}
		size = binary.BigEndian.Uint64(data[8:16])
		header = 16
	}
	if size < header || size > uint64(len(data)) {
		return "", nil, nil, fmt.Errorf("avif: bad %s box size", typ)
	}
	return typ, data[header:size], data[size:], nil
}
