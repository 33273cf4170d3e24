package beacon

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// maxInflatedBytes caps decompressed report payloads at 16 MB.
const maxInflatedBytes = 16 << 20

// DecodeReportData decodes a scanner report payload from MQTT:
//   - plain report text (starts with the block header)
//   - zlib-compressed report text (scanners on constrained uplinks)
func DecodeReportData(data []byte) (*Scanner, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	text := data
	if isZlib(data) {
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("inflating report payload: %w", err)
		}
		text = inflated
	}

	return ParseSingleReport(string(text))
}

// isZlib sniffs the two-byte zlib header (0x78 followed by a valid flag byte).
func isZlib(data []byte) bool {
	if len(data) < 2 || data[0] != 0x78 {
		return false
	}
	switch data[1] {
	case 0x01, 0x5e, 0x9c, 0xda:
		return true
	}
	return false
}

func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxInflatedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflatedBytes {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", maxInflatedBytes)
	}
	return out, nil
}

// DeflateReport compresses report text the way scanners on constrained
// uplinks publish it. The counterpart of DecodeReportData's zlib path.
func DeflateReport(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(text)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
