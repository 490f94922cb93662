package mesh

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// payloadFormat is the envelope a map payload arrives in.
type payloadFormat int

const (
	formatUnknown payloadFormat = iota
	formatPNG
	formatJSON
	formatZlib
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var errNoMapChunk = errors.New("no zTXt chunk found in PNG")

// DecodeMapData decodes Valetudo map data from a PNG with an embedded zTXt
// chunk (the MQTT format), raw JSON, or zlib-compressed JSON.
func DecodeMapData(data []byte) (*ValetudoMap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var (
		raw []byte
		err error
	)
	switch sniffFormat(data) {
	case formatPNG:
		raw, err = mapChunk(data)
		if err != nil {
			return nil, fmt.Errorf("extracting PNG zTXt: %w", err)
		}
	case formatJSON:
		raw = data
	default:
		raw, err = inflate(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not PNG, JSON, or zlib-compressed")
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return ParseMapJSON(raw)
}

// IsPNG checks if data starts with PNG magic bytes
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngMagic)
}

func sniffFormat(data []byte) payloadFormat {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case IsPNG(data):
		return formatPNG
	case len(trimmed) > 0 && trimmed[0] == '{':
		return formatJSON
	case len(data) >= 2 && data[0]&0x0f == 8 && binary.BigEndian.Uint16(data[:2])%31 == 0:
		return formatZlib
	}
	return formatUnknown
}

// mapChunk walks the PNG chunks and inflates the first zTXt body.
func mapChunk(data []byte) ([]byte, error) {
	var found []byte
	err := walkPNGChunks(data, func(kind string, body []byte) (bool, error) {
		if kind != "zTXt" {
			return kind != "IEND", nil
		}
		text, err := ztxtText(body)
		if err != nil {
			return false, fmt.Errorf("extracting zTXt data: %w", err)
		}
		found = text
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errNoMapChunk
	}
	return found, nil
}

// walkPNGChunks calls fn for each chunk (length, type, body, CRC) after the
// signature until fn returns false or an error.
func walkPNGChunks(data []byte, fn func(kind string, body []byte) (bool, error)) error {
	if len(data) < len(pngMagic) {
		return fmt.Errorf("data too short for PNG")
	}
	pos := len(pngMagic)
	for pos+12 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		kind := string(data[pos+4 : pos+8])
		start := pos + 8
		if n < 0 || start+n+4 > len(data) {
			return fmt.Errorf("truncated PNG chunk %q", kind)
		}
		more, err := fn(kind, data[start:start+n])
		if err != nil || !more {
			return err
		}
		pos = start + n + 4
	}
	return nil
}

// ztxtText decodes "keyword\0method compressed".
func ztxtText(body []byte) ([]byte, error) {
	nul := bytes.IndexByte(body, 0)
	if nul == -1 {
		return nil, fmt.Errorf("no null terminator in zTXt chunk")
	}
	if nul+1 >= len(body) {
		return nil, fmt.Errorf("truncated zTXt chunk")
	}
	if method := body[nul+1]; method != 0 {
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
	return inflate(body[nul+2:])
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(io.LimitReader(r, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return out, nil
}
