// Package xmlenc resolves the character encoding of an XML input before the
// streaming parsers see it.
//
// Resolution order: an encoding named by the XML declaration in the first
// 4KiB wins; otherwise a byte order mark decides; otherwise UTF-8. Callers
// that hit a parse failure on the resolved reader retry exactly once with
// the legacy fallback encoding.
package xmlenc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// peekSize bounds how far we look for the XML declaration.
const peekSize = 4096

// Legacy is the fallback applied on the one retry after a decode or parse
// failure with the declared/detected encoding.
var Legacy encoding.Encoding = charmap.Windows1254

var declRe = regexp.MustCompile(`(?i)<\?xml[^>]*encoding\s*=\s*['"]([A-Za-z0-9._-]+)['"]`)

// DeclaredEncoding extracts the encoding name from an XML declaration in
// head, or "" when none is present.
func DeclaredEncoding(head []byte) string {
	m := declRe.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// Resolve wraps r in a decoding reader per the resolution order. The name of
// the chosen encoding is returned for logging.
func Resolve(r io.Reader) (io.Reader, string, error) {
	head := make([]byte, peekSize)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, "", fmt.Errorf("peek xml header: %w", err)
	}
	head = head[:n]
	full := io.MultiReader(bytes.NewReader(head), r)

	if name := DeclaredEncoding(head); name != "" {
		enc, lookupErr := ianaindex.IANA.Encoding(name)
		if lookupErr == nil && enc != nil {
			if isUTF8Name(name) {
				// Still route through a BOM-stripping decoder.
				return transform.NewReader(full, unicode.UTF8BOM.NewDecoder()), name, nil
			}
			return transform.NewReader(full, enc.NewDecoder()), name, nil
		}
		// Unknown declared name falls through to autodetection.
	}

	det := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return transform.NewReader(full, det), "utf-8", nil
}

// OpenFile opens path and resolves its encoding. The returned closer owns
// the underlying file.
func OpenFile(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	r, name, err := Resolve(f)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	return &readCloser{Reader: r, c: f}, name, nil
}

// OpenFileLegacy opens path decoding with the legacy fallback, for the
// single retry after a parse failure.
func OpenFileLegacy(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	r := transform.NewReader(f, Legacy.NewDecoder())
	return &readCloser{Reader: r, c: f}, "windows-1254", nil
}

type readCloser struct {
	io.Reader
	c io.Closer
}

func (rc *readCloser) Close() error { return rc.c.Close() }

func isUTF8Name(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8", "csutf8":
		return true
	}
	return false
}
