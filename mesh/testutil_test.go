package mesh

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"testing"
)

// fixtureMap is a two-room map at 5 cm per pixel:
//
//	x: 100       105       109
//	   ##########           y=200
//	   #1111#222#           y=201..204
//	   ##########           y=205
//
// Segment 2 uses compressed pixels and is listed first.
func fixtureMap() *ValetudoMap {
	var seg1 []int
	for y := 201; y <= 204; y++ {
		for x := 101; x <= 104; x++ {
			seg1 = append(seg1, x, y)
		}
	}
	var seg2 []int
	for y := 201; y <= 204; y++ {
		seg2 = append(seg2, 106, y, 3)
	}
	var walls []int
	for x := 100; x <= 109; x++ {
		walls = append(walls, x, 200, x, 205)
	}
	for y := 201; y <= 204; y++ {
		walls = append(walls, 100, y, 105, y, 109, y)
	}

	return &ValetudoMap{
		Class:     "ValetudoMap",
		MetaData:  MapMetaData{Version: 2, Nonce: "fixture", TotalLayerArea: 7000},
		Size:      Size{X: 512, Y: 512},
		PixelSize: 5,
		Layers: []MapLayer{
			{Type: LayerSegment, MetaData: LayerMetaData{SegmentID: "2", Name: "Hall", Area: 3000}, CompressedPixels: seg2},
			{Type: LayerSegment, MetaData: LayerMetaData{SegmentID: "1", Name: "Kitchen", Area: 4000}, Pixels: seg1},
			{Type: LayerWall, Pixels: walls},
		},
		Entities: []MapEntity{
			{Type: "charger_location", Points: []int{510, 1015}},
			{Type: "robot_position", Points: []int{520, 1012}, MetaData: map[string]interface{}{"angle": 90.0}},
		},
	}
}

func fixtureJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(fixtureMap())
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func pngChunk(kind string, body []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.WriteString(kind)
	buf.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(body)
	_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

// pngWith builds a PNG byte stream holding the given chunks between IHDR
// and IEND. Image data is omitted; only the chunk layout matters here.
func pngWith(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(pngMagic)
	buf.Write(pngChunk("IHDR", make([]byte, 13)))
	for _, c := range chunks {
		buf.Write(c)
	}
	buf.Write(pngChunk("IEND", nil))
	return buf.Bytes()
}

func ztxt(keyword string, method byte, compressed []byte) []byte {
	body := append([]byte(keyword), 0, method)
	return pngChunk("zTXt", append(body, compressed...))
}
