package hawk

import (
	"fmt"
	"strings"
)

// sprintf implements the printf/sprintf conversion engine (spec.md §4
// "printf-style output"): scans format for `%...` directives, pulls
// one Value per conversion (except `%%`), and renders with Go's fmt
// under the hood once the directive's meaning is translated.
func sprintf(rt *Runtime, format string, args []Value) string {
	var out strings.Builder
	ai := 0
	next := func() Value {
		if ai < len(args) {
			v := args[ai]
			ai++
			return v
		}
		return Int(0)
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		if j < len(format) && format[j] == '%' {
			out.WriteByte('%')
			i = j + 1
			continue
		}
		spec, verb, newI := scanSpec(format, j)
		i = newI
		switch verb {
		case 'd', 'i':
			out.WriteString(fmt.Sprintf(spec+"d", ToInt(next(), true)))
		case 'o':
			out.WriteString(fmt.Sprintf(spec+"o", ToInt(next(), true)))
		case 'x':
			out.WriteString(fmt.Sprintf(spec+"x", ToInt(next(), true)))
		case 'X':
			out.WriteString(fmt.Sprintf(spec+"X", ToInt(next(), true)))
		case 'u':
			out.WriteString(fmt.Sprintf(spec+"d", uint64(ToInt(next(), true))))
		case 'c':
			out.WriteString(formatCharVerb(rt, spec, next()))
		case 's':
			out.WriteString(fmt.Sprintf(spec+"s", ToStr(rt, next())))
		case 'f', 'F':
			out.WriteString(fmt.Sprintf(spec+"f", ToFloat(next(), true)))
		case 'e':
			out.WriteString(fmt.Sprintf(spec+"e", ToFloat(next(), true)))
		case 'E':
			out.WriteString(fmt.Sprintf(spec+"E", ToFloat(next(), true)))
		case 'g':
			out.WriteString(fmt.Sprintf(spec+"g", ToFloat(next(), true)))
		case 'G':
			out.WriteString(fmt.Sprintf(spec+"G", ToFloat(next(), true)))
		case 0:
			// malformed trailing '%': emit verbatim.
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(verb)
		}
	}
	return out.String()
}

// scanSpec consumes flags/width/precision (and `*` dynamic width,
// left unsupported here since Hawk's argument list is positional-only
// like the reference implementation) up to and including the
// conversion verb, returning the Go-compatible spec prefix (without
// the verb) and the verb byte.
func scanSpec(format string, i int) (spec string, verb byte, next int) {
	start := i
	for i < len(format) && strings.IndexByte("-+ 0#", format[i]) >= 0 {
		i++
	}
	for i < len(format) && isDigit(rune(format[i])) {
		i++
	}
	if i < len(format) && format[i] == '.' {
		i++
		for i < len(format) && isDigit(rune(format[i])) {
			i++
		}
	}
	if i >= len(format) {
		return "%" + format[start:i], 0, i
	}
	verb = format[i]
	spec = "%" + format[start:i]
	return spec, verb, i + 1
}

// formatCharVerb implements AWK's overloaded %c: an int argument
// prints as the codepoint/byte it names, a string argument prints its
// first character.
func formatCharVerb(rt *Runtime, spec string, v Value) string {
	switch x := v.(type) {
	case Int:
		return fmt.Sprintf(spec+"s", string(rune(x)))
	case Float:
		return fmt.Sprintf(spec+"s", string(rune(int64(x))))
	case Char:
		return fmt.Sprintf(spec+"s", string(rune(x)))
	case ByteChar:
		return fmt.Sprintf(spec+"s", string([]byte{byte(x)}))
	default:
		s := ToStr(rt, v)
		if s == "" {
			return fmt.Sprintf(spec+"s", "")
		}
		r := []rune(s)
		return fmt.Sprintf(spec+"s", string(r[0]))
	}
}
