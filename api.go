package hawk

import "io"

// Parse lexes and parses a single source string into a *Program. The
// parser it uses has no IncludeResolver installed, so an @include
// directive inside src fails; use ParseFile when the program needs
// includes resolved against the filesystem.
func Parse(src string, opts *Options) (*Program, error) {
	if opts == nil {
		opts = NewOptions()
	}
	gem := NewGem()
	lx := NewLexer(gem, opts)
	if err := lx.PushSource("<input>", src); err != nil {
		return nil, err
	}
	p := NewParser(gem, opts, lx)
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	if gerr := gem.Err(); gerr != nil {
		return nil, gerr
	}
	return prog, nil
}

// ParseFile reads and parses the program rooted at path, wiring a
// filesystem-backed IncludeResolver so @include/@include_once
// directives resolve relative to the directory of path, including
// those inside nested include files.
func ParseFile(path string, opts *Options) (*Program, error) {
	if opts == nil {
		opts = NewOptions()
	}
	content, err := readSourceFile(path)
	if err != nil {
		return nil, err
	}
	gem := NewGem()
	lx := NewLexer(gem, opts)
	if err := lx.PushSource(path, content); err != nil {
		return nil, err
	}
	p := NewParser(gem, opts, lx)
	p.SetIncludeResolver(newFileIncludeResolver(path))
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	if gerr := gem.Err(); gerr != nil {
		return nil, gerr
	}
	return prog, nil
}

// Run builds a fresh Runtime for prog, seeds it with assigns (the
// `-v name=value` command-line convention, applied before BEGIN
// runs), and drives it through the BEGIN/main-loop/END lifecycle,
// returning the exit code the program would produce.
func Run(prog *Program, opts *Options, argv []string, assigns map[string]string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if opts == nil {
		opts = NewOptions()
	}
	rt := NewRuntime(prog, opts, argv, stdin, stdout, stderr)
	for name, val := range assigns {
		rt.SetGlobal(name, val)
	}
	return rt.Run()
}
