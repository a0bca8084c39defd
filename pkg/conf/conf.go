// Package conf parses the brace-delimited configuration-file dialect
// used by the recovery tooling:
//
//	configfile  = *WS *configentry
//	configentry = value [1*WS value] [1*WS "{" *(configentry 1*WS) "}"] *WS ";"
//
// '=' counts as whitespace, so "name = value;" and "name value;" are the
// same entry. Comments are '#', '//' and '/* */'. A top-level entry of
// the form `include <file>;` logically appends the included file's
// entries after the current file's, no matter where the directive
// appears; include files must have balanced braces.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxIncludeNesting = 16

// Entry is one `name [value] [{...}];` item.
type Entry struct {
	Name    string
	Value   string
	Line    int
	Entries []*Entry
}

// Get returns the first subentry with the given name, or nil.
func (e *Entry) Get(name string) *Entry {
	for _, sub := range e.Entries {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// File is one parsed configuration file, includes already appended.
type File struct {
	Name    string
	Entries []*Entry
}

// Get returns the first top-level entry with the given name, or nil.
func (f *File) Get(name string) *Entry {
	for _, e := range f.Entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// String returns the value of the named top-level entry, or def when the
// entry is absent.
func (f *File) String(name, def string) string {
	if e := f.Get(name); e != nil {
		return e.Value
	}
	return def
}

// ParseError reports a syntax problem with its position.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Load reads and parses path, following include directives relative to
// the including file's directory.
func Load(path string) (*File, error) {
	return load(path, 0)
}

func load(path string, depth int) (*File, error) {
	if depth > maxIncludeNesting {
		return nil, &ParseError{File: path, Msg: "includes nested too deep"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, includes, err := parse(path, data)
	if err != nil {
		return nil, err
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := load(inc, depth+1)
		if err != nil {
			return nil, fmt.Errorf("error in file included from %s: %w", path, err)
		}
		f.Entries = append(f.Entries, sub.Entries...)
	}
	return f, nil
}

// Parse parses data as a configuration file. Include directives are
// rejected here; only Load resolves them.
func Parse(name string, data []byte) (*File, error) {
	f, includes, err := parse(name, data)
	if err != nil {
		return nil, err
	}
	if len(includes) > 0 {
		return nil, &ParseError{File: name, Msg: "include directive outside Load"}
	}
	return f, nil
}

type parser struct {
	name string
	data []byte
	pos  int
	line int
}

func parse(name string, data []byte) (*File, []string, error) {
	p := &parser{name: name, data: data, line: 1}
	f := &File{Name: name}
	var includes []string

	// Stack of open sections; the innermost collects new entries.
	var stack []*Entry

	sink := func() *[]*Entry {
		if len(stack) == 0 {
			return &f.Entries
		}
		return &stack[len(stack)-1].Entries
	}

	for {
		p.skipWS()
		if p.eof() {
			break
		}

		if p.peek() == '}' {
			if len(stack) == 0 {
				return nil, nil, p.errorf("extraneous closing brace")
			}
			sect := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			p.pos++
			p.skipWS()
			if p.eof() || p.peek() != ';' {
				return nil, nil, p.errorf("missing semicolon after closing brace for section starting at line %d", sect.Line)
			}
			p.pos++
			continue
		}

		name, term, err := p.value()
		if err != nil {
			return nil, nil, err
		}
		if name == "" {
			return nil, nil, p.errorf("unexpected character trying to read variable name")
		}
		e := &Entry{Name: name, Line: p.line}
		*sink() = append(*sink(), e)

		switch term {
		case '{':
			stack = append(stack, e)
			continue
		case ';':
			continue
		}

		val, term, err := p.value()
		if err != nil {
			return nil, nil, err
		}
		if val == "" && term == 0 {
			return nil, nil, p.errorf("unexpected character trying to read value for %s", e.Name)
		}
		e.Value = val

		switch term {
		case '{':
			stack = append(stack, e)
		case ';':
			if len(stack) == 0 && strings.EqualFold(e.Name, "include") {
				includes = append(includes, e.Value)
				// The directive itself is not an entry.
				f.Entries = f.Entries[:len(f.Entries)-1]
			}
		default:
			return nil, nil, p.errorf("unexpected characters after value %s %s", e.Name, e.Value)
		}
	}

	if len(stack) > 0 {
		first := stack[0]
		if first.Value != "" {
			return nil, nil, p.errorf("unclosed section %s %s at line %d", first.Name, first.Value, first.Line)
		}
		return nil, nil, p.errorf("unclosed section %s at line %d", first.Name, first.Line)
	}

	return f, includes, nil
}

func (p *parser) eof() bool  { return p.pos >= len(p.data) }
func (p *parser) peek() byte { return p.data[p.pos] }

func (p *parser) peek2() byte {
	if p.pos+1 < len(p.data) {
		return p.data[p.pos+1]
	}
	return 0
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{File: p.name, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

// skipWS consumes whitespace, '=' and all three comment styles.
func (p *parser) skipWS() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\r', '=':
			p.pos++
		case '\n':
			p.line++
			p.pos++
		case '#':
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		case '/':
			switch p.peek2() {
			case '/':
				for !p.eof() && p.peek() != '\n' {
					p.pos++
				}
			case '*':
				p.pos += 2
				for !p.eof() && !(p.peek() == '*' && p.peek2() == '/') {
					if p.peek() == '\n' {
						p.line++
					}
					p.pos++
				}
				if !p.eof() {
					p.pos += 2
				}
			default:
				return
			}
		default:
			return
		}
	}
}

// value reads one bare or quoted value. It also consumes trailing
// whitespace and reports which structural terminator (';', '{'), if any,
// directly follows.
func (p *parser) value() (string, byte, error) {
	if p.eof() {
		return "", 0, nil
	}

	var val string
	if p.peek() == '"' {
		p.pos++
		var sb strings.Builder
		for {
			if p.eof() {
				return "", 0, p.errorf("file ends inside quoted string")
			}
			c := p.peek()
			if c == '\n' || c == '\r' {
				return "", 0, p.errorf("newline inside quoted string")
			}
			if c == '"' {
				p.pos++
				break
			}
			if c == '\\' && (p.peek2() == '"' || p.peek2() == '\\') {
				p.pos++
				c = p.peek()
			}
			sb.WriteByte(c)
			p.pos++
		}
		val = sb.String()
	} else {
		start := p.pos
		for !p.eof() {
			c := p.peek()
			if c == ' ' || c == '\t' || c == '\r' || c == '\n' ||
				c == '/' || c == '#' || c == '=' ||
				c == ';' || c == '{' || c == '}' {
				break
			}
			p.pos++
		}
		val = string(p.data[start:p.pos])
	}

	p.skipWS()
	if !p.eof() && (p.peek() == ';' || p.peek() == '{') {
		term := p.peek()
		p.pos++
		return val, term, nil
	}
	return val, 0, nil
}
