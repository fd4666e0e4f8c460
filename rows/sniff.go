package rows

import (
	"bytes"
	"encoding/csv"
	"io"
)

// SampleSize is how much leading input Sniff looks at.
const SampleSize = 4096

// candidates in order of preference on ties.
var candidates = []rune{',', ';', '\t', '|', ':'}

// Dialect describes how fields are separated.
type Dialect struct {
	Delimiter rune
	// TrimLeadingSpace is set when delimiters are usually followed by a space.
	TrimLeadingSpace bool
}

// Sniff detects the delimiter from a leading sample of the input.
//
// Each candidate splits the sample into records; the candidate whose most
// common field count (above one) covers the largest share of records wins,
// ties going to the larger field count and then to candidate order. At least
// half of the records must agree, and the header record must split into at
// least two fields. A header in which no candidate occurs belongs to a
// single-column file and sniffs as a comma, whatever the values contain.
func Sniff(sample []byte) (Dialect, error) {
	if len(bytes.TrimSpace(sample)) == 0 {
		return Dialect{}, &FormatError{Reason: "missing header row"}
	}

	header, _, _ := bytes.Cut(sample, []byte("\n"))
	if !bytes.ContainsAny(header, string(candidates)) {
		return Dialect{Delimiter: ','}, nil
	}

	var (
		best      rune
		bestFreq  int
		bestCount int
	)
	for _, c := range candidates {
		if !bytes.ContainsRune(sample, c) {
			continue
		}

		counts, ok := fieldCounts(sample, c)
		if !ok || len(counts) == 0 || counts[0] < 2 {
			continue
		}

		count, freq := mode(counts)
		if count < 2 || freq*2 < len(counts) {
			continue
		}
		if freq > bestFreq || (freq == bestFreq && count > bestCount) {
			best, bestFreq, bestCount = c, freq, count
		}
	}

	if best == 0 {
		return Dialect{}, &FormatError{Reason: "could not determine delimiter"}
	}

	return Dialect{
		Delimiter:        best,
		TrimLeadingSpace: spaceAfter(sample, best),
	}, nil
}

func fieldCounts(sample []byte, delim rune) ([]int, bool) {
	r := csv.NewReader(bytes.NewReader(sample))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var counts []int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return counts, true
		}
		if err != nil {
			return nil, false
		}
		counts = append(counts, len(rec))
	}
}

// mode returns the most frequent value and its frequency; ties prefer the larger value.
func mode(values []int) (value, freq int) {
	seen := make(map[int]int, len(values))
	for _, v := range values {
		seen[v]++
	}
	for v, n := range seen {
		if n > freq || (n == freq && v > value) {
			value, freq = v, n
		}
	}
	return value, freq
}

func spaceAfter(sample []byte, delim rune) bool {
	d := []byte(string(delim))
	total := bytes.Count(sample, d)
	spaced := bytes.Count(sample, append(d, ' '))
	return total > 0 && spaced*2 > total
}
