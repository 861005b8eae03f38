package hawk

import (
	"bufio"
	"io"
	"strings"
)

// Record owns the current input record and its field split, tracking
// NF/NR/FNR and rebuilding $0 lazily when fields are assigned (spec.md
// §3.2 "Record / field state").
type Record struct {
	rt *Runtime

	line   string
	fields []string // fields[0] is unused; $1 is fields[1]

	dirty0 bool // $0 needs rebuilding from fields
	nr     int64
	fnr    int64

	reader      *bufio.Reader
	curFile     string
	argIdx      int
	openedStdin bool
}

func NewRecord(rt *Runtime) *Record {
	return &Record{rt: rt}
}

// Field returns $k, rebuilding $0 from the split fields first if an
// assignment left it dirty.
func (r *Record) Field(k int) string {
	if k == 0 {
		if r.dirty0 {
			r.rebuild0()
		}
		return r.line
	}
	if k < 0 || k >= len(r.fields) {
		return ""
	}
	return r.fields[k]
}

func (r *Record) rebuild0() {
	ofs := r.rt.ofsStr()
	if len(r.fields) > 1 {
		r.line = strings.Join(r.fields[1:], ofs)
	} else {
		r.line = ""
	}
	r.dirty0 = false
}

// SetField assigns $k, splitting $0 afresh when k==0 and extending
// the field slice with empty strings when k>NF, both per spec.md
// §4.1's field-assignment rules.
func (r *Record) SetField(k int, v string) {
	if k == 0 {
		r.line = v
		r.split()
		r.dirty0 = false
		return
	}
	for k >= len(r.fields) {
		r.fields = append(r.fields, "")
	}
	r.fields[k] = v
	r.syncNF()
	r.dirty0 = true
}

func (r *Record) syncNF() {
	nf := len(r.fields) - 1
	r.rt.setGlobalByName("NF", Int(int64(nf)))
}

// split re-derives fields[] from line using FS semantics (spec.md
// §4.1): a single space FS means "split on runs of whitespace,
// stripping leading/trailing"; any other single character is a
// literal separator; a longer FS is a regex.
func (r *Record) split() {
	fs := ToStr(r.rt, r.rt.getGlobalByName("FS"))
	r.fields = splitFields(r.line, fs)
	r.syncNF()
}

func splitFields(line, fs string) []string {
	out := make([]string, 1, 8)
	switch {
	case fs == " ":
		for _, f := range strings.Fields(line) {
			out = append(out, f)
		}
	case fs == "":
		for _, c := range line {
			out = append(out, string(c))
		}
	case len(fs) == 1 && fs != "\\":
		out = append(out, strings.Split(line, fs)...)
	default:
		re, err := CompileRegex(fs, NewGem(), Location{})
		if err != nil {
			out = append(out, strings.Split(line, fs)...)
		} else {
			out = append(out, re.Compiled.Split(line, -1)...)
		}
	}
	return out
}

// NextRecord reads the next record from the current ARGV file (or
// stdin), advancing across file boundaries, incrementing NR/FNR, and
// performing the field split. Returns ok=false at end of all input.
func (r *Record) NextRecord() (string, bool) {
	for {
		if r.reader == nil {
			if !r.openNextFile() {
				return "", false
			}
		}
		line, err := r.readOneRecord()
		if err != nil {
			if err == io.EOF {
				r.reader = nil
				continue
			}
			r.reader = nil
			continue
		}
		r.nr++
		r.fnr++
		r.rt.setGlobalByName("NR", Int(r.nr))
		r.rt.setGlobalByName("FNR", Int(r.fnr))
		if r.rt.opts.GetBool("dialect.striprecspc") {
			line = strings.TrimRight(line, " \t")
		}
		r.SetField(0, line)
		return line, true
	}
}

func (r *Record) readOneRecord() (string, error) {
	rs := ToStr(r.rt, r.rt.getGlobalByName("RS"))
	if rs == "\n" || rs == "" {
		line, err := r.reader.ReadString('\n')
		if err != nil && line == "" {
			return "", io.EOF
		}
		return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
	}
	sep := rs
	if sep == "" {
		sep = "\n"
	}
	var sb strings.Builder
	for {
		b, err := r.reader.ReadByte()
		if err != nil {
			if sb.Len() == 0 {
				return "", io.EOF
			}
			return sb.String(), nil
		}
		sb.WriteByte(b)
		if strings.HasSuffix(sb.String(), sep) {
			s := sb.String()
			return s[:len(s)-len(sep)], nil
		}
	}
}

func (r *Record) openNextFile() bool {
	argv := r.rt.argv
	for r.argIdx < len(argv) {
		name := argv[r.argIdx]
		r.argIdx++
		if name == "" {
			continue
		}
		if strings.Contains(name, "=") && isAssignmentArg(name) {
			applyArgAssignment(r.rt, name)
			continue
		}
		if name == "-" {
			r.reader = bufio.NewReader(r.rt.in)
			r.curFile = ""
		} else {
			f, err := openFile(name)
			if err != nil {
				continue
			}
			r.reader = bufio.NewReader(f)
			r.curFile = name
		}
		r.fnr = 0
		r.rt.setGlobalByName("FILENAME", r.rt.NewString(r.curFile))
		return true
	}
	if !r.openedStdin && r.argIdx == 0 {
		r.openedStdin = true
		r.reader = bufio.NewReader(r.rt.in)
		r.curFile = ""
		return true
	}
	return false
}

// SkipToNextFile implements `nextfile`/`nextofile`: abandon the
// current input source immediately (spec.md §4.2).
func (r *Record) SkipToNextFile(outputSide bool) {
	r.reader = nil
}

func isAssignmentArg(s string) bool {
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return false
	}
	name := s[:eq]
	for i, c := range name {
		if i == 0 && !isIdentStart(c) {
			return false
		}
		if i > 0 && !isIdentCont(c) {
			return false
		}
	}
	return true
}

func applyArgAssignment(rt *Runtime, s string) {
	eq := strings.IndexByte(s, '=')
	name, val := s[:eq], s[eq+1:]
	rt.setGlobalByName(name, rt.NewNumericString(val))
}
