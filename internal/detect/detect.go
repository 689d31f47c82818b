// Package detect sniffs the encoding, kind, and physical format of an
// operator-supplied file before parsing.
package detect

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/bliinkai/ingest/internal/rows"
)

// Result describes a sniffed file.
type Result struct {
	Encoding   string
	Kind       rows.Kind // set only for fixed-width files
	Format     rows.Format
	Delimiter  rune // set only for delimited files
	Confidence float64
}

// fixedWidthName matches the upstream fixed-width drop naming convention:
// <KIND>_YYYYMMDD_NNNNN.TXT, case-insensitive.
var fixedWidthName = regexp.MustCompile(`(?i)^(CUSTOMER|ACCOUNT|TRANSACTION|RELATIONSHIP)_\d{8}_\d{5}\.TXT$`)

// delimiterCandidates in priority order for score ties.
var delimiterCandidates = []rune{',', '\t', ';', '|', ':', ' '}

// sniffLines is how many non-empty lines the delimiter scorer samples.
const sniffLines = 10

// encodingConfidenceFloor is the chardet confidence (0-100) below which we
// fall back to trying the known encodings in order.
const encodingConfidenceFloor = 70

// fallbackEncodings tried in order when detection is inconclusive.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8},
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

// File sniffs encoding and format for the given file bytes and name.
func File(name string, data []byte) (Result, error) {
	enc, conf := detectEncoding(data)

	if kind, ok := FixedWidthKind(name); ok {
		return Result{
			Encoding:   enc,
			Kind:       kind,
			Format:     rows.FormatFixedWidth,
			Confidence: conf,
		}, nil
	}

	delim, dconf := InferDelimiter(data)
	return Result{
		Encoding:   enc,
		Format:     rows.FormatDelimited,
		Delimiter:  delim,
		Confidence: min(conf, dconf),
	}, nil
}

// FixedWidthKind reports whether the filename follows the fixed-width drop
// convention, and which record family it carries.
func FixedWidthKind(name string) (rows.Kind, bool) {
	m := fixedWidthName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	switch strings.ToUpper(m[1]) {
	case "CUSTOMER":
		return rows.KindCustomer, true
	case "ACCOUNT":
		return rows.KindAccount, true
	case "TRANSACTION":
		return rows.KindTransaction, true
	case "RELATIONSHIP":
		return rows.KindRelationship, true
	}
	return "", false
}

// detectEncoding names the charset of data and a 0-1 confidence.
// Low-confidence detections fall back to trying the known encodings in order
// and returning the first that decodes.
func detectEncoding(data []byte) (string, float64) {
	if len(data) == 0 {
		return "utf-8", 1
	}

	// A confident hit only counts when Decode handles the charset;
	// anything else (UTF-16, Shift-JIS, ...) falls through to the
	// ordered fallback list.
	if r, err := chardet.NewTextDetector().DetectBest(data); err == nil && r.Confidence >= encodingConfidenceFloor {
		if name := strings.ToLower(r.Charset); decodable(name) {
			return name, float64(r.Confidence) / 100
		}
	}

	for _, fe := range fallbackEncodings {
		if fe.name == "utf-8" {
			if utf8.Valid(data) {
				return fe.name, 0.5
			}
			continue
		}
		if _, err := fe.enc.NewDecoder().Bytes(data); err == nil {
			return fe.name, 0.5
		}
	}

	// latin-1 decodes any byte sequence, so this is unreachable in
	// practice; keep a deterministic answer anyway.
	return "latin-1", 0.1
}

// decodable reports whether Decode accepts the charset name.
func decodable(name string) bool {
	switch name {
	case "", "utf-8", "ascii", "us-ascii", "latin-1", "iso-8859-1", "cp1252", "windows-1252":
		return true
	}
	return false
}

// Decode converts file bytes from the named encoding to UTF-8.
func Decode(data []byte, encodingName string) ([]byte, error) {
	switch strings.ToLower(encodingName) {
	case "", "utf-8", "ascii", "us-ascii":
		return data, nil
	case "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Bytes(data)
	case "cp1252", "windows-1252":
		return charmap.Windows1252.NewDecoder().Bytes(data)
	}
	return nil, fmt.Errorf("unsupported encoding %q", encodingName)
}

// InferDelimiter scores each candidate delimiter over the first sniffLines
// non-empty lines: score = mean occurrences x 1/(1+variance). A delimiter
// that appears consistently on every line beats one that appears often but
// unevenly. Defaults to ',' at confidence 0.5 when every score is zero.
func InferDelimiter(data []byte) (rune, float64) {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
		if len(lines) == sniffLines {
			break
		}
	}

	if len(lines) == 0 {
		return ',', 0.5
	}

	bestDelim := ','
	bestScore := 0.0

	for _, cand := range delimiterCandidates {
		counts := make([]float64, len(lines))
		total := 0.0
		for i, line := range lines {
			c := float64(bytes.Count(line, []byte(string(cand))))
			counts[i] = c
			total += c
		}
		mean := total / float64(len(lines))
		if mean == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			d := c - mean
			variance += d * d
		}
		variance /= float64(len(lines))

		score := mean * (1 / (1 + variance))
		if score > bestScore {
			bestScore = score
			bestDelim = cand
		}
	}

	if bestScore == 0 {
		return ',', 0.5
	}

	conf := bestScore / (1 + bestScore)
	return bestDelim, conf
}
