package mote

import "strings"

// DecodePayload turns every byte into a one-byte character and concatenates
// them in order. Bytes are written unchanged; nothing is re-encoded.
func DecodePayload(p []byte) string {
	var b strings.Builder
	b.Grow(len(p))
	for _, c := range p {
		b.WriteByte(c)
	}
	return b.String()
}
