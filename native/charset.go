package native

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/tomyedwab/fbwire/fberr"
)

// Character set ids carried in a text field's subtype.
const (
	CharsetNone       int32 = 0
	CharsetOctets     int32 = 1
	CharsetASCII      int32 = 2
	CharsetUnicodeFSS int32 = 3
	CharsetUTF8       int32 = 4
	CharsetSJIS       int32 = 5
	CharsetEUCJ       int32 = 6
	CharsetISO8859_1  int32 = 21
	CharsetWin1252    int32 = 53
	CharsetUTF16      int32 = 64
)

// charset describes how a text subtype maps bytes to characters. width
// is the character unit size used for capacity math; variable marks
// rune-encoded sets where a character may be shorter than width; lead
// gives the byte length of the character starting at a lead byte for
// legacy multi-byte sets.
type charset struct {
	width    int
	variable bool
	lead     func(byte) int
	enc      encoding.Encoding
}

var charsets = map[int32]charset{
	CharsetNone:       {width: 1},
	CharsetOctets:     {width: 1},
	CharsetASCII:      {width: 1},
	CharsetUnicodeFSS: {width: 3, variable: true},
	CharsetUTF8:       {width: 4, variable: true},
	CharsetSJIS:       {width: 2, lead: sjisLead, enc: japanese.ShiftJIS},
	CharsetEUCJ:       {width: 2, lead: eucjpLead, enc: japanese.EUCJP},
	CharsetISO8859_1:  {width: 1, enc: charmap.ISO8859_1},
	CharsetWin1252:    {width: 1, enc: charmap.Windows1252},
	CharsetUTF16:      {width: 2, enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
}

// sjisLead reports how many bytes the Shift-JIS character starting with
// b occupies. ASCII and half-width katakana are single bytes.
func sjisLead(b byte) int {
	if b >= 0x81 && b <= 0x9f || b >= 0xe0 && b <= 0xfc {
		return 2
	}
	return 1
}

// eucjpLead reports how many bytes the EUC-JP character starting with b
// occupies. 0x8e prefixes half-width katakana, 0x8f prefixes JIS X
// 0212 triples.
func eucjpLead(b byte) int {
	switch {
	case b == 0x8f:
		return 3
	case b == 0x8e || b >= 0xa1 && b <= 0xfe:
		return 2
	default:
		return 1
	}
}

func charsetFor(subType int32) charset {
	if cs, ok := charsets[subType]; ok {
		return cs
	}
	return charset{width: 1}
}

// truncateChars cuts payload down to at most capacity bytes without
// splitting a character: capacity is re-derived in character units of
// the set's width, and only whole characters are kept.
func truncateChars(payload []byte, capacity int, cs charset) []byte {
	if len(payload) <= capacity {
		return payload
	}
	if cs.variable {
		capChars := capacity / cs.width
		used, chars := 0, 0
		for used < len(payload) && chars < capChars {
			_, n := utf8.DecodeRune(payload[used:])
			if used+n > capacity {
				break
			}
			used += n
			chars++
		}
		return payload[:used]
	}
	if cs.lead != nil {
		used := 0
		for used < len(payload) {
			n := cs.lead(payload[used])
			if used+n > capacity || used+n > len(payload) {
				break
			}
			used += n
		}
		return payload[:used]
	}
	n := capacity
	n -= n % cs.width
	return payload[:n]
}

// encodeText converts a value string to the field's character set.
func encodeText(s string, cs charset) ([]byte, error) {
	if cs.enc == nil {
		return []byte(s), nil
	}
	out, err := cs.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fberr.NewMarshalingRangeError("text not representable in field character set")
	}
	return out, nil
}

// decodeText converts field bytes back to a string.
func decodeText(p []byte, cs charset) (string, error) {
	if cs.enc == nil {
		return string(p), nil
	}
	out, err := cs.enc.NewDecoder().Bytes(p)
	if err != nil {
		return "", fberr.NewMarshalingRangeError("malformed text payload for field character set")
	}
	return string(out), nil
}
