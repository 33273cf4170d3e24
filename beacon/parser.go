package beacon

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Report text format, one block per scanner:
//
//	--- scanner 0 ---
//	404,-588,-901
//	528,-643,409
//
//	--- scanner 1 ---
//	...
//
// Blocks are separated by blank lines. Scanner ids need not be contiguous
// but must be unique; the first block in the file is the reference.

const headerPrefix = "--- scanner "
const headerSuffix = " ---"

// ParseReportFile reads and parses a scanner report file.
func ParseReportFile(path string) ([]*Scanner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}
	return ParseReport(string(data))
}

// ParseReport parses scanner report text into scanners, in input order.
// Malformed input (missing header, wrong triple arity, non-integer
// coordinate, duplicate id) is a fatal parse error.
func ParseReport(text string) ([]*Scanner, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var scanners []*Scanner
	seen := make(map[int]bool)

	var id int
	var beacons []Position
	inBlock := false

	flush := func() {
		if inBlock {
			scanners = append(scanners, NewScanner(id, beacons))
			beacons = nil
			inBlock = false
		}
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		if line == "" {
			flush()
			continue
		}

		if strings.HasPrefix(line, headerPrefix) {
			flush()
			parsed, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if seen[parsed] {
				return nil, fmt.Errorf("line %d: duplicate scanner id %d", lineNo, parsed)
			}
			seen[parsed] = true
			id = parsed
			inBlock = true
			continue
		}

		if !inBlock {
			return nil, fmt.Errorf("line %d: beacon outside scanner block: %q", lineNo, line)
		}

		p, err := parseTriple(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		beacons = append(beacons, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	flush()

	if len(scanners) == 0 {
		return nil, fmt.Errorf("report contains no scanner blocks")
	}
	return scanners, nil
}

func parseHeader(line string) (int, error) {
	inner := strings.TrimPrefix(line, headerPrefix)
	if !strings.HasSuffix(inner, headerSuffix) {
		return 0, fmt.Errorf("malformed scanner header: %q", line)
	}
	inner = strings.TrimSuffix(inner, headerSuffix)
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed scanner id in header: %q", line)
	}
	return n, nil
}

func parseTriple(line string) (Position, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Position{}, fmt.Errorf("expected 3 coordinates, got %d: %q", len(parts), line)
	}
	var coords [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Position{}, fmt.Errorf("non-integer coordinate %q: %q", part, line)
		}
		coords[i] = n
	}
	return Position{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// ParseSingleReport parses a report expected to contain exactly one scanner
// block, as delivered per-topic over MQTT or per-scanner over HTTP.
func ParseSingleReport(text string) (*Scanner, error) {
	scanners, err := ParseReport(text)
	if err != nil {
		return nil, err
	}
	if len(scanners) != 1 {
		return nil, fmt.Errorf("expected a single scanner block, got %d", len(scanners))
	}
	return scanners[0], nil
}

// ReportSummary provides a quick overview of a parsed report.
type ReportSummary struct {
	ScannerCount int
	BeaconCounts map[int]int
	TotalBeacons int
}

// Summarize extracts key information from parsed scanners.
func Summarize(scanners []*Scanner) ReportSummary {
	summary := ReportSummary{
		ScannerCount: len(scanners),
		BeaconCounts: make(map[int]int, len(scanners)),
	}
	for _, s := range scanners {
		summary.BeaconCounts[s.ID] = len(s.Local)
		summary.TotalBeacons += len(s.Local)
	}
	return summary
}

// FormatReport renders scanners back into report text. Useful for publishing
// and for round-trip tests.
func FormatReport(scanners []*Scanner) string {
	var b strings.Builder
	for i, s := range scanners {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- scanner %d ---\n", s.ID)
		for _, p := range s.Local {
			fmt.Fprintf(&b, "%d,%d,%d\n", p.X, p.Y, p.Z)
		}
	}
	return b.String()
}
