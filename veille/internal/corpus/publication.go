package corpus

import (
	"slices"
	"sync"
)

// Publication is one feed entry resolved to document URLs. Title, Link and
// DocumentURLs never change after creation; the extracted text is written
// once, when the state reaches Done.
type Publication struct {
	ID           string
	Title        string
	Link         string
	DocumentURLs []string

	mu        sync.Mutex
	state     State
	done      chan struct{}
	text      string
	extracted int
	failures  []*DocumentError
}

func newPublication(id, title, link string, urls []string) *Publication {
	return &Publication{
		ID:           id,
		Title:        title,
		Link:         link,
		DocumentURLs: slices.Clone(urls),
		done:         make(chan struct{}),
	}
}

// State returns the current extraction state.
func (p *Publication) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Text returns the extracted text and whether extraction is Done.
func (p *Publication) Text() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text, p.state == Done
}

// Status returns a snapshot of the publication's availability.
func (p *Publication) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		ID:           p.ID,
		Title:        p.Title,
		Link:         p.Link,
		DocumentURLs: slices.Clone(p.DocumentURLs),
		State:        p.state,
		Extracted:    p.extracted,
		TextLength:   len([]rune(p.text)),
	}
	for _, f := range p.failures {
		st.Failures = append(st.Failures, Failure{URL: f.URL, Stage: f.Stage, Error: f.Err.Error()})
	}
	return st
}

// begin moves NotStarted to InProgress. It reports whether the caller owns
// the extraction, and returns the channel closed when it completes.
func (p *Publication) begin() (owner bool, done <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == NotStarted {
		p.state = InProgress
		return true, p.done
	}
	return false, p.done
}

// finish stores the result, moves to Done and wakes every waiter.
func (p *Publication) finish(text string, extracted int, failures []*DocumentError) {
	p.mu.Lock()
	p.text = text
	p.extracted = extracted
	p.failures = failures
	p.state = Done
	p.mu.Unlock()
	close(p.done)
}
