package internal

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const charsetSniffLen = 1024

var (
	charsetPattern    = regexp.MustCompile(`(?i)<meta\s+[^>]*http-equiv=["']?content-type["']?[^>]*content=["']?[^;]*;\s*charset=([^"'\s>]+)`)
	charsetPatternAlt = regexp.MustCompile(`(?i)<meta\s+charset=["']?([^"'\s>]+)`)
)

var charsetAliases = map[string]string{
	"utf8": "utf-8", "utf_8": "utf-8",
	"utf16": "utf-16le", "utf-16": "utf-16le", "utf16le": "utf-16le",
	"utf16be": "utf-16be",
	"1252":    "windows-1252", "cp1252": "windows-1252", "windows1252": "windows-1252",
	"1251": "windows-1251", "cp1251": "windows-1251",
	"1250": "windows-1250", "cp1250": "windows-1250",
	"latin1": "iso-8859-1", "latin-1": "iso-8859-1", "iso88591": "iso-8859-1", "iso_8859-1": "iso-8859-1",
	"iso885915": "iso-8859-15", "iso_8859-15": "iso-8859-15",
	"shift-jis": "shift_jis", "shiftjis": "shift_jis", "sjis": "shift_jis", "x-sjis": "shift_jis",
	"euc_jp": "euc-jp", "eucjp": "euc-jp",
	"euc_kr": "euc-kr", "euckr": "euc-kr",
	"gb2312": "gbk", "gb2312-80": "gbk",
	"big-5": "big5", "big5-hkscs": "big5",
}

var encodings = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"windows-1251": charmap.Windows1251,
	"windows-1250": charmap.Windows1250,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"iso-8859-5":   charmap.ISO8859_5,
	"iso-8859-7":   charmap.ISO8859_7,
	"iso-8859-15":  charmap.ISO8859_15,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"shift_jis":    japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"iso-2022-jp":  japanese.ISO2022JP,
	"euc-kr":       korean.EUCKR,
	"gbk":          simplifiedchinese.GBK,
	"big5":         traditionalchinese.Big5,
}

// NormalizeCharset maps a declared charset label to the name used internally.
func NormalizeCharset(charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if alias, ok := charsetAliases[charset]; ok {
		return alias
	}
	return charset
}

// DetectCharset guesses the encoding of an HTML document from its byte order
// mark, its meta charset declaration and finally its byte content. Valid
// UTF-8 with multi-byte sequences wins over a conflicting declaration.
func DetectCharset(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return "utf-8"
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return "utf-16be"
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return "utf-16le"
	}

	sample := data
	if len(sample) > charsetSniffLen {
		sample = sample[:charsetSniffLen]
	}
	declared := declaredCharset(string(sample))

	if utf8.Valid(data) {
		if declared == "" || declared == "utf-8" || hasMultiByteRunes(data) {
			return "utf-8"
		}
	}
	if declared != "" {
		return declared
	}
	return "windows-1252"
}

func declaredCharset(head string) string {
	if m := charsetPattern.FindStringSubmatch(head); len(m) > 1 {
		return NormalizeCharset(m[1])
	}
	if m := charsetPatternAlt.FindStringSubmatch(head); len(m) > 1 {
		return NormalizeCharset(m[1])
	}
	return ""
}

func hasMultiByteRunes(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// ToUTF8 decodes data from charset. Unknown charsets pass data through
// unchanged.
func ToUTF8(data []byte, charset string) ([]byte, error) {
	charset = NormalizeCharset(charset)
	if charset == "utf-8" {
		return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}), nil
	}
	enc, ok := encodings[charset]
	if !ok {
		return data, nil
	}
	return io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
}

// DecodeHTML converts an HTML document to a UTF-8 string. A non-empty forced
// charset skips detection. The charset actually used is returned.
func DecodeHTML(data []byte, forced string) (string, string, error) {
	charset := NormalizeCharset(forced)
	if charset == "" {
		charset = DetectCharset(data)
	}
	out, err := ToUTF8(data, charset)
	if err != nil {
		return "", charset, err
	}
	return string(out), charset, nil
}
