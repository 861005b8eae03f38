package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hawklang/hawk"
	"github.com/hawklang/hawk/ascii"
)

type args struct {
	program   *string
	progFile  *string
	pragmas   pragmaFlags
	fieldSep  *string
	assignArg assignFlags
}

// pragmaFlags collects repeated `-pragma name=value` flags (flag
// package has no native repeatable-flag type).
type pragmaFlags []string

func (p *pragmaFlags) String() string { return strings.Join(*p, ",") }
func (p *pragmaFlags) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// assignFlags collects repeated `-v name=value` pre-BEGIN assignments.
type assignFlags []string

func (a *assignFlags) String() string { return strings.Join(*a, ",") }
func (a *assignFlags) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func readArgs() *args {
	a := &args{
		program:  flag.String("e", "", "Program text"),
		progFile: flag.String("f", "", "Path to a program file"),
		fieldSep: flag.String("F", "", "Field separator (sets FS)"),
	}
	flag.Var(&a.pragmas, "pragma", "Set a dialect pragma, name=value (repeatable)")
	flag.Var(&a.assignArg, "v", "Assign a global before BEGIN, name=value (repeatable)")
	flag.Parse()
	return a
}

func main() {
	a := readArgs()
	opts := hawk.NewOptions()

	for _, p := range a.pragmas {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			log.Fatalf("bad -pragma %q, want name=value", p)
		}
		applyPragmaFlag(opts, name, val)
	}

	var prog *hawk.Program
	var err error
	files := flag.Args()

	switch {
	case *a.program != "":
		prog, err = hawk.Parse(*a.program, opts)
	case *a.progFile != "":
		prog, err = hawk.ParseFile(*a.progFile, opts)
	default:
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "usage: hawk [-F fs] [-v name=value] (-e program | -f progfile | program) [file ...]"))
			os.Exit(2)
		}
		prog, err = hawk.Parse(files[0], opts)
		files = files[1:]
	}
	if err != nil {
		reportError(err)
		os.Exit(2)
	}

	argv := buildArgv(files)
	assigns := map[string]string{}
	if *a.fieldSep != "" {
		assigns["FS"] = *a.fieldSep
	}
	for _, v := range a.assignArg {
		name, val, ok := strings.Cut(v, "=")
		if !ok {
			log.Fatalf("bad -v %q, want name=value", v)
		}
		assigns[name] = val
	}

	code, err := hawk.Run(prog, opts, argv, assigns, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		reportError(err)
		os.Exit(2)
	}
	os.Exit(code)
}

// buildArgv returns the input operands for Run. The record reader
// treats every argv entry as an input file (or var=value assignment)
// and reads stdin only when argv is empty, so no program name goes
// first.
func buildArgv(files []string) []string {
	return append([]string(nil), files...)
}

func applyPragmaFlag(opts *hawk.Options, name, val string) {
	if b, err := strconv.ParseBool(val); err == nil {
		opts.SetBool(name, b)
		return
	}
	if i, err := strconv.Atoi(val); err == nil {
		opts.SetInt(name, i)
		return
	}
	opts.SetString(name, val)
}

func reportError(err error) {
	if gerr, ok := err.(*hawk.GemError); ok {
		fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "%s", gerr.Error()))
		return
	}
	fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "%s", err.Error()))
}
