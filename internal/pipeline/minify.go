package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
)

const (
	NoMinifyName   = "none"
	WhitespaceName = "whitespace"
)

// NoMinify passes the combined output through.
type NoMinify struct{}

func (NoMinify) Name() string { return NoMinifyName }

func (NoMinify) Minify(_ context.Context, in []byte, _ bundle.Type, _ vary.Params) ([]byte, error) {
	return in, nil
}

// Whitespace is a conservative minifier.
// CSS: drops comments (except /*! ... */) and collapses whitespace outside strings.
// JS: trims trailing whitespace and drops blank lines.
type Whitespace struct{}

func (Whitespace) Name() string { return WhitespaceName }

func (Whitespace) Minify(_ context.Context, in []byte, t bundle.Type, _ vary.Params) ([]byte, error) {
	switch t {
	case bundle.TypeCSS:
		return minifyCSS(in), nil
	case bundle.TypeJS:
		return minifyJS(in), nil
	default:
		return in, nil
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// punctuation around which whitespace carries no meaning
func isCSSPunct(c byte) bool {
	return c == '{' || c == '}' || c == ';' || c == ',' || c == '>'
}

func minifyCSS(in []byte) []byte {
	out := make([]byte, 0, len(in))
	pendingSpace := false

	flush := func(next byte) {
		if pendingSpace && len(out) > 0 && !isCSSPunct(next) {
			if last := out[len(out)-1]; !isCSSPunct(last) && last != '\n' {
				out = append(out, ' ')
			}
		}
		pendingSpace = false
	}

	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			end := bytes.Index(in[i+2:], []byte("*/"))
			if end < 0 {
				end = len(in) - i - 2
			}
			stop := i + 2 + end + 2
			if stop > len(in) {
				stop = len(in)
			}
			if i+2 < len(in) && in[i+2] == '!' {
				flush('/')
				out = append(out, in[i:stop]...)
				out = append(out, '\n')
			}
			i = stop - 1
		case c == '"' || c == '\'':
			flush(c)
			j := i + 1
			for j < len(in) && in[j] != c {
				if in[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(in) {
				j = len(in) - 1
			}
			out = append(out, in[i:j+1]...)
			i = j
		case isSpace(c):
			pendingSpace = true
		default:
			flush(c)
			out = append(out, c)
		}
	}
	return bytes.TrimSpace(out)
}

func minifyJS(in []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(in))
	sc := bufio.NewScanner(bytes.NewReader(in))
	sc.Buffer(make([]byte, 0, 64*1024), len(in)+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes()
}
