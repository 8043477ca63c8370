package loader

import (
	"bufio"
	"io"
	"strings"
)

// csvScanner reads delimited records from exported CSV files. Both "," and
// ";" act as field separators, in the same file if need be, since archives
// may mix exports produced with either delimiter. Quoted fields follow CSV
// rules with "" escapes and may span lines.
type csvScanner struct {
	r     *bufio.Reader
	first bool
}

func newCSVScanner(r io.Reader) *csvScanner {
	return &csvScanner{r: bufio.NewReaderSize(r, 64<<10), first: true}
}

const bom = "\xef\xbb\xbf"

// next returns the fields of the next record, or io.EOF when the input is
// exhausted. Empty lines yield no record and are skipped.
func (s *csvScanner) next() ([]string, error) {
	for {
		fields, err := s.scanRecord()
		if err != nil {
			return nil, err
		}
		if fields == nil {
			continue
		}
		if s.first {
			s.first = false
			if len(fields) > 0 {
				fields[0] = strings.TrimPrefix(fields[0], bom)
			}
		}
		return fields, nil
	}
}

// scanRecord consumes one physical record. A nil, nil return means the line
// was empty.
func (s *csvScanner) scanRecord() ([]string, error) {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
		seenAny  bool
	)

	for {
		r, _, err := s.r.ReadRune()
		if err == io.EOF {
			if !seenAny {
				return nil, io.EOF
			}
			fields = append(fields, cur.String())
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		seenAny = true

		switch {
		case inQuotes:
			if r == '"' {
				next, _, err := s.r.ReadRune()
				if err == nil && next == '"' {
					cur.WriteByte('"')
					continue
				}
				if err == nil {
					s.r.UnreadRune()
				}
				inQuotes = false
				continue
			}
			cur.WriteRune(r)
		case r == '"':
			inQuotes = true
		case r == ',' || r == ';':
			fields = append(fields, cur.String())
			cur.Reset()
		case r == '\r':
			// swallow; the \n decides the record end
		case r == '\n':
			if len(fields) == 0 && cur.Len() == 0 {
				return nil, nil
			}
			fields = append(fields, cur.String())
			return fields, nil
		default:
			cur.WriteRune(r)
		}
	}
}
