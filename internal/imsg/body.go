package imsg

import (
	"strings"
	"unicode/utf8"
)

// BodyFormat describes one observed revision of the attributedBody
// typedstream layout. The decoder does not parse the format; it slices
// around class-name markers and strips fixed framing.
type BodyFormat struct {
	Name string

	NumberMarker     string
	StringMarker     string
	DictionaryMarker string

	// PrefixLen and SuffixLen are the framing widths, in characters, that
	// surround the payload once it has been isolated. They are only stripped
	// when the candidate is longer than MinFramedLen.
	PrefixLen    int
	SuffixLen    int
	MinFramedLen int
}

// FormatTypedStreamV1 matches the blobs written by Messages on macOS 13-15.
var FormatTypedStreamV1 = BodyFormat{
	Name:             "typedstream-v1",
	NumberMarker:     "NSNumber",
	StringMarker:     "NSString",
	DictionaryMarker: "NSDictionary",
	PrefixLen:        6,
	SuffixLen:        12,
	MinFramedLen:     18,
}

// Decoder extracts readable text from attributedBody blobs.
type Decoder struct {
	Format BodyFormat
}

var defaultDecoder = Decoder{Format: FormatTypedStreamV1}

// DecodeBody runs the default decoder. It returns false when no readable
// text could be recovered; that is never an error.
func DecodeBody(blob []byte) (string, bool) {
	return defaultDecoder.Decode(blob)
}

// Decode is best-effort and lossy.
func (d Decoder) Decode(blob []byte) (string, bool) {
	if len(blob) == 0 {
		return "", false
	}
	f := d.Format

	s := toUTF8(blob)

	if f.NumberMarker != "" {
		if before, _, found := strings.Cut(s, f.NumberMarker); found {
			s = before
		}
	}
	if f.StringMarker != "" {
		if _, after, found := strings.Cut(s, f.StringMarker); found && after != "" {
			s = after
		}
	}
	if f.DictionaryMarker != "" {
		if before, _, found := strings.Cut(s, f.DictionaryMarker); found {
			s = before
		}
	}

	if r := []rune(s); len(r) > f.MinFramedLen {
		if len(r) > f.PrefixLen+f.SuffixLen {
			s = string(r[f.PrefixLen : len(r)-f.SuffixLen])
		} else {
			s = ""
		}
	}

	s = strings.Map(func(r rune) rune {
		if isControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// toUTF8 interprets b as UTF-8, substituting U+FFFD for every invalid byte.
func toUTF8(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// isControl reports C0 controls, DEL and the C1 range.
func isControl(r rune) bool {
	return r <= 0x1F || (r >= 0x7F && r <= 0x9F)
}
