package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/engine"
)

// prompter serializes questions on the terminal across parallel runs
type prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the next line without its newline
func (p *prompter) Ask(question string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "? %s: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
	}
	return strings.TrimRight(line, "\r\n")
}

// progress reports engine callbacks for one document
type progress struct {
	doc     string
	verbose bool
	prompt  *prompter
}

func (p *progress) WillExecute(a action.Action, index int) {
	if p.verbose {
		fmt.Printf("  [%s] %d. %s\n", p.doc, index+1, a.Describe())
	}
}

func (p *progress) DidProduce(r engine.Result, _ action.Action, index int) {
	if !p.verbose {
		return
	}
	if r.Kind() == engine.KindImage {
		b := r.Image.Bounds()
		fmt.Printf("  [%s] %d. → image %dx%d from %s\n", p.doc, index+1, b.Dx(), b.Dy(), r.Source)
		return
	}
	fmt.Printf("  [%s] %d. → %q\n", p.doc, index+1, r.Text)
}

func (p *progress) DidFail(a action.Action, index int, err error) {
	fmt.Printf("⚠ [%s] %d. %s failed: %v\n", p.doc, index+1, a.Describe(), err)
}

func (p *progress) NeedsInput(resume func(string), a action.Action, index int) {
	go func() {
		resume(p.prompt.Ask(fmt.Sprintf("[%s] %d. text for %s", p.doc, index+1, action.Innermost(a.Type()).Selector())))
	}()
}

func (p *progress) NeedsFile(resume func(string), a action.Action, index int) {
	go func() {
		resume(p.prompt.Ask(fmt.Sprintf("[%s] %d. file to upload at %s", p.doc, index+1, action.Innermost(a.Type()).Selector())))
	}()
}

func (p *progress) DidFinish(results engine.Results) {
	if p.verbose {
		fmt.Printf("  [%s] finished with %d results\n", p.doc, len(results))
	}
}
