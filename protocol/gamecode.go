package protocol

import (
	"errors"
	"strings"
)

// GameCode names a room. v1 codes are four ASCII letters packed
// little-endian into a positive int32; v2 codes are six letters over a
// scrambled alphabet packed into a negative int32.
type GameCode int32

// CodeLocal is the reserved code spelled "LOCAL". It is never allocated and
// never listed.
const CodeLocal GameCode = 0x20

const v2Alphabet = "QWXRTYLPESDFGHUJKZOCVBINMA"

var v2Index = func() [26]int32 {
	var idx [26]int32
	for i, c := range v2Alphabet {
		idx[c-'A'] = int32(i)
	}
	return idx
}()

var (
	ErrBadCodeLength = errors.New("protocol: game code must be 4 or 6 letters")
	ErrBadCodeChar   = errors.New("protocol: game code contains a non-letter")
)

// CodeFromString parses a 4-letter (v1) or 6-letter (v2) code.
func CodeFromString(s string) (GameCode, error) {
	s = strings.ToUpper(s)
	if s == "LOCAL" {
		return CodeLocal, nil
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return 0, ErrBadCodeChar
		}
	}
	switch len(s) {
	case 4:
		return codeV1(s), nil
	case 6:
		return codeV2(s), nil
	default:
		return 0, ErrBadCodeLength
	}
}

func codeV1(s string) GameCode {
	return GameCode(int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16 | int32(s[3])<<24)
}

func codeV2(s string) GameCode {
	a := [6]int32{}
	for i := 0; i < 6; i++ {
		a[i] = v2Index[s[i]-'A']
	}
	first := a[0] + 26*a[1]
	second := a[2] + 26*(a[3]+26*(a[4]+26*a[5]))
	return GameCode(first&0x3ff | (second<<10)&0x3ffffc00 | int32(-0x80000000))
}

// String renders the code in its letter form. Negative codes are v2,
// positive codes v1.
func (c GameCode) String() string {
	if c == CodeLocal {
		return "LOCAL"
	}
	if c < 0 {
		v := int32(c)
		firstTwo := v & 0x3ff
		lastFour := (v >> 10) & 0xfffff
		return string([]byte{
			v2Alphabet[firstTwo%26],
			v2Alphabet[firstTwo/26],
			v2Alphabet[lastFour%26],
			v2Alphabet[lastFour/26%26],
			v2Alphabet[lastFour/676%26],
			v2Alphabet[lastFour/17576%26],
		})
	}
	v := int32(c)
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Version reports 1 or 2 for the code scheme.
func (c GameCode) Version() int {
	if c < 0 {
		return 2
	}
	return 1
}
