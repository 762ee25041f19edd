package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"resdex/internal/resource"
)

// ErrParse is returned by FakeParser for files registered with Fail.
var ErrParse = errors.New("fake parse failure")

// FakeParser returns canned results keyed by file name and records every call.
type FakeParser struct {
	mu      sync.Mutex
	results map[string]*resource.ParseResult
	failing map[string]bool
	calls   []string
}

func NewFakeParser() *FakeParser {
	return &FakeParser{
		results: make(map[string]*resource.ParseResult),
		failing: make(map[string]bool),
	}
}

// Set registers the result returned for files named fileName.
func (p *FakeParser) Set(fileName string, result *resource.ParseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[fileName] = result
}

// Fail makes parsing fileName return ErrParse.
func (p *FakeParser) Fail(fileName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[fileName] = true
}

func (p *FakeParser) Parse(_ context.Context, path string, _ resource.FileKind, _ resource.Domain) (*resource.ParseResult, error) {
	name := filepath.Base(path)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	if p.failing[name] {
		return nil, ErrParse
	}
	if r, ok := p.results[name]; ok {
		c := *r
		return &c, nil
	}
	return &resource.ParseResult{}, nil
}

// Calls returns the file names parsed so far, in call order.
func (p *FakeParser) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallCount returns how many times fileName was parsed.
func (p *FakeParser) CallCount(fileName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == fileName {
			n++
		}
	}
	return n
}

var _ resource.Parser = (*FakeParser)(nil)
