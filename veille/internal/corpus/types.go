package corpus

import (
	"fmt"
	"time"
)

// State is the extraction state of a publication. It only moves forward.
type State int

const (
	NotStarted State = iota
	InProgress
	Done
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{NotStarted, InProgress, Done} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("corpus: unknown state %q", b)
}

// Stage names the pipeline step where a document failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
)

// DocumentError is the failure of one document of a publication. It is
// recorded and logged by the store, never returned to search callers.
type DocumentError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("corpus: %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Attempt describes one document processed during an extraction, successful
// or not. It is handed to the Recorder.
type Attempt struct {
	PublicationID string
	URL           string
	Err           *DocumentError // nil on success
	Bytes         int
	Hash          string // SHA-256 of the fetched body
	Chars         int
	Duration      time.Duration
}

// Failure is the JSON-friendly view of a DocumentError.
type Failure struct {
	URL   string `json:"url"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// Status is a point-in-time view of a publication's availability.
type Status struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	DocumentURLs []string  `json:"document_urls"`
	State        State     `json:"state"`
	Extracted    int       `json:"extracted"`
	Failures     []Failure `json:"failures,omitempty"`
	TextLength   int       `json:"text_length"`
}
