// Package protocol decodes the datagrams sent by stats clients.
//
// A datagram holds metric lines, separated by \n, \r\n or \r, of the form
//
//	<key>:<value>|<unit>[@<sample_rate>][:<value>|<unit>[@<sample_rate>]...]
//
// where unit "ms" marks a timer and any other unit a counter. A line may
// start with ^NN (two decimal digits) to reuse the first NN characters of
// the previous line in the same datagram.
//
// Decoding is best effort: anything that cannot be parsed is dropped and
// never reported as an error.
package protocol

import (
	"strconv"
	"strings"
)

// Kind is the type of a sample.
type Kind int

const (
	Counter Kind = iota
	Timer
)

func (k Kind) String() string {
	if k == Timer {
		return "timer"
	}
	return "counter"
}

// Sample is one observed metric event.
type Sample struct {
	Key        string
	Value      float64
	Kind       Kind
	SampleRate float64
}

// Parse decodes every sample it can find in the datagram, in line order
// then field order.
func Parse(datagram []byte) []Sample {
	samples := []Sample{}
	previous := ""

	for _, line := range strings.FieldsFunc(string(datagram), isLineBreak) {
		line = expandBackReference(line, previous)
		previous = line

		parts := strings.Split(line, ":")
		key := NormalizeKey(parts[0])
		for _, part := range parts[1:] {
			sample, ok := parseField(key, part)
			if !ok {
				continue
			}
			samples = append(samples, sample)
		}
	}

	return samples
}

// expandBackReference replaces a leading ^NN with the first NN characters
// of the previous line. NN larger than the previous line takes all of it.
func expandBackReference(line, previous string) string {
	if len(line) < 3 || line[0] != '^' || !isDigit(line[1]) || !isDigit(line[2]) {
		return line
	}

	n := int(line[1]-'0')*10 + int(line[2]-'0')
	if n > len(previous) {
		n = len(previous)
	}
	return previous[:n] + line[3:]
}

// isLineBreak splits on \n, \r and \r\n. The empty lines this leaves
// between \r and \n are dropped along with blank lines.
func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// NormalizeKey collapses whitespace runs into underscores, turns
// backslashes into hyphens and drops anything outside [A-Za-z0-9._-].
func NormalizeKey(key string) string {
	key = strings.Join(strings.Fields(key), "_")
	key = strings.ReplaceAll(key, `\`, "-")

	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isValidKeyChar(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isValidKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', isDigit(c):
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}

// parseField parses <value>|<unit>[@<sample_rate>].
func parseField(key, field string) (Sample, bool) {
	fields := strings.Split(field, "|")
	if len(fields) != 2 {
		return Sample{}, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Sample{}, false
	}

	unit := fields[1]
	sampleRate := 1.0
	if i := strings.IndexByte(unit, '@'); i >= 0 {
		sampleRate, err = strconv.ParseFloat(strings.TrimSpace(unit[i+1:]), 64)
		if err != nil || !(sampleRate > 0.0 && sampleRate <= 1.0) {
			return Sample{}, false
		}
		unit = unit[:i]
	}

	kind := Counter
	if unit == "ms" {
		kind = Timer
	}

	return Sample{
		Key:        key,
		Value:      value,
		Kind:       kind,
		SampleRate: sampleRate,
	}, true
}
