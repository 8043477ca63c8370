package discover

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"xmlcsv/internal/xmlpath"
)

// Options tune the discovery pass. Zero values take the defaults below.
type Options struct {
	// SampleCap stops the pass after this many nodes (element opens and
	// text nodes both count; a skipped deep subtree counts once).
	SampleCap int64

	// MaxDepth is the deepest element level inspected; deeper subtrees are
	// skipped wholesale and only counted on their parent.
	MaxDepth int

	// MinRepeat is the occurrence count a path needs to become a candidate.
	MinRepeat int64

	// FieldSampleLimit caps retained sample values per field.
	FieldSampleLimit int

	// DistinctCap bounds the per-field distinct set; once exceeded the set
	// is dropped and the field reports DistinctCapped.
	DistinctCap int
}

const (
	defaultSampleCap        = 50_000_000
	defaultMaxDepth         = 15
	defaultMinRepeat        = 5
	defaultFieldSampleLimit = 5
	defaultDistinctCap      = 1000
)

func (o *Options) setDefaults() {
	if o.SampleCap <= 0 {
		o.SampleCap = defaultSampleCap
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.MinRepeat <= 0 {
		o.MinRepeat = defaultMinRepeat
	}
	if o.FieldSampleLimit <= 0 {
		o.FieldSampleLimit = defaultFieldSampleLimit
	}
	if o.DistinctCap <= 0 {
		o.DistinctCap = defaultDistinctCap
	}
}

// Scanner is the explicit state machine driving the pass: a stack of open
// element frames plus accumulated per-path statistics. It is single-use.
type Scanner struct {
	opts Options

	stack       []*frame
	stats       map[string]*pathStat
	order       []string
	nodesSeen   int64
	maxDepthHit bool
	namespaces  map[string]string
}

// frame is one open element occurrence.
type frame struct {
	name  string
	path  string
	text  strings.Builder
	attrs []xml.Attr

	// childN counts direct children by name within this occurrence, for
	// per-record cardinality.
	childN map[string]int
}

type pathStat struct {
	count      int64
	fields     map[string]*fieldStat
	fieldOrder []string
}

type fieldStat struct {
	kind         NodeKind
	recordsWith  int64
	maxPerRecord int
	samples      []string
	distinct     map[string]struct{}
	capped       bool
}

// NewScanner returns a scanner with opts applied over the defaults.
func NewScanner(opts Options) *Scanner {
	opts.setDefaults()
	return &Scanner{
		opts:  opts,
		stats: make(map[string]*pathStat),
	}
}

// Discover runs one pass over r and assembles the report. source is recorded
// in the report meta only.
func Discover(r io.Reader, source string, opts Options) (*Report, error) {
	s := NewScanner(opts)
	if err := s.Run(r); err != nil {
		return nil, err
	}
	return s.Report(source), nil
}

// Run consumes the token stream. Parse errors abort; callers may retry the
// whole pass with a different encoding.
func (s *Scanner) Run(r io.Reader) error {
	dec := xml.NewDecoder(r)
	// Input is already decoded to UTF-8; accept any declared charset as-is.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	for s.nodesSeen < s.opts.SampleCap {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := s.onOpen(dec, t); err != nil {
				return err
			}
		case xml.CharData:
			s.onText(t)
		case xml.EndElement:
			s.onClose()
		}
	}
	return nil
}

func (s *Scanner) onOpen(dec *xml.Decoder, se xml.StartElement) error {
	s.nodesSeen++
	s.captureNamespaces(se)

	name := se.Name.Local
	if len(s.stack) >= s.opts.MaxDepth {
		// Too deep: the parent still learns the child exists, but the
		// subtree itself goes uninspected.
		s.maxDepthHit = true
		if parent := s.top(); parent != nil {
			parent.childN[name]++
		}
		if err := dec.Skip(); err != nil {
			return fmt.Errorf("skip deep subtree <%s>: %w", name, err)
		}
		return nil
	}

	path := name
	if parent := s.top(); parent != nil {
		path = parent.path + "/" + name
	}
	f := &frame{
		name:   name,
		path:   path,
		childN: make(map[string]int),
	}
	if len(se.Attr) > 0 {
		f.attrs = append(f.attrs, se.Attr...)
	}
	s.stack = append(s.stack, f)
	return nil
}

func (s *Scanner) onText(cd xml.CharData) {
	s.nodesSeen++
	if f := s.top(); f != nil {
		f.text.Write(cd)
	}
}

func (s *Scanner) onClose() {
	f := s.top()
	if f == nil {
		return
	}
	s.stack = s.stack[:len(s.stack)-1]

	ps := s.stat(f.path)
	ps.count++
	text := strings.TrimSpace(f.text.String())

	for _, attr := range f.attrs {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		fs := s.field(ps, "./@"+attr.Name.Local, KindAttribute)
		fs.recordsWith++
		if fs.maxPerRecord < 1 {
			fs.maxPerRecord = 1
		}
		s.addSample(fs, strings.TrimSpace(attr.Value))
	}

	if text != "" {
		fs := s.field(ps, "./text()", KindText)
		fs.recordsWith++
		if fs.maxPerRecord < 1 {
			fs.maxPerRecord = 1
		}
		s.addSample(fs, text)
	}

	for name, n := range f.childN {
		fs := s.field(ps, "./"+name, KindElement)
		fs.recordsWith++
		if n > fs.maxPerRecord {
			fs.maxPerRecord = n
		}
	}

	if parent := s.top(); parent != nil {
		parent.childN[f.name]++
		if text != "" {
			fs := s.field(s.stat(parent.path), "./"+f.name, KindElement)
			s.addSample(fs, text)
		}
	}
}

func (s *Scanner) top() *frame {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *Scanner) stat(path string) *pathStat {
	ps, ok := s.stats[path]
	if !ok {
		ps = &pathStat{fields: make(map[string]*fieldStat)}
		s.stats[path] = ps
		s.order = append(s.order, path)
	}
	return ps
}

func (s *Scanner) field(ps *pathStat, rel string, kind NodeKind) *fieldStat {
	fs, ok := ps.fields[rel]
	if !ok {
		fs = &fieldStat{kind: kind, distinct: make(map[string]struct{})}
		ps.fields[rel] = fs
		ps.fieldOrder = append(ps.fieldOrder, rel)
	}
	return fs
}

func (s *Scanner) addSample(fs *fieldStat, v string) {
	if v == "" {
		return
	}
	if len(fs.samples) < s.opts.FieldSampleLimit {
		fs.samples = append(fs.samples, v)
	}
	if fs.capped {
		return
	}
	fs.distinct[v] = struct{}{}
	if len(fs.distinct) > s.opts.DistinctCap {
		fs.capped = true
		fs.distinct = nil
	}
}

func (s *Scanner) captureNamespaces(se xml.StartElement) {
	if s.namespaces != nil {
		return
	}
	var ns map[string]string
	for _, attr := range se.Attr {
		switch {
		case attr.Name.Space == "xmlns":
			if ns == nil {
				ns = make(map[string]string)
			}
			ns[attr.Name.Local] = attr.Value
		case attr.Name.Local == "xmlns":
			if ns == nil {
				ns = make(map[string]string)
			}
			ns[""] = attr.Value
		}
	}
	if ns != nil {
		s.namespaces = ns
	}
}

// Report assembles candidates from the accumulated statistics: paths whose
// occurrence count reached MinRepeat and that own at least one field,
// ordered by estimated count descending.
func (s *Scanner) Report(source string) *Report {
	var cands []Candidate
	for _, path := range s.order {
		ps := s.stats[path]
		if ps.count < s.opts.MinRepeat || len(ps.fields) == 0 {
			continue
		}
		cands = append(cands, s.candidate(path, ps))
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].EstimatedCount != cands[j].EstimatedCount {
			return cands[i].EstimatedCount > cands[j].EstimatedCount
		}
		return cands[i].RecordPath < cands[j].RecordPath
	})

	return &Report{
		Meta: Meta{
			SourceFile:  source,
			GeneratedAt: nowUTC(),
			NodesSeen:   s.nodesSeen,
			MaxDepthHit: s.maxDepthHit,
			Namespaces:  s.namespaces,
		},
		Candidates: cands,
	}
}

func (s *Scanner) candidate(path string, ps *pathStat) Candidate {
	rels := append([]string(nil), ps.fieldOrder...)
	sort.Strings(rels)

	fields := make([]Field, 0, len(rels))
	var nested []NestedArray
	for _, rel := range rels {
		fs := ps.fields[rel]
		f := Field{
			Path:           rel,
			Kind:           fs.kind,
			Cardinality:    cardinality(fs, ps.count),
			Type:           InferType(fs.samples),
			Samples:        fs.samples,
			DistinctCount:  len(fs.distinct),
			DistinctCapped: fs.capped,
		}
		fields = append(fields, f)
		if fs.kind == KindElement && fs.maxPerRecord > 1 {
			nested = append(nested, NestedArray{
				FieldPath:      rel,
				SuggestedTable: xmlpath.TableName(path, path+"/"+strings.TrimPrefix(rel, "./")),
			})
		}
	}

	return Candidate{
		RecordPath:     path,
		EstimatedCount: ps.count,
		Fields:         fields,
		NestedArrays:   nested,
	}
}

func cardinality(fs *fieldStat, records int64) string {
	min := "0"
	if fs.recordsWith >= records {
		min = "1"
	}
	max := "1"
	if fs.maxPerRecord > 1 {
		max = "N"
	}
	return min + ".." + max
}
