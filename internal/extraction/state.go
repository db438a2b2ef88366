package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
)

// Source names a Markdown input of the graph.
type Source string

const (
	SourceHSMT Source = "HSMT"
	SourceTBMT Source = "TBMT"
	SourceHSKT Source = "HSKT"
	SourceTCDG Source = "TCDG"
)

// Branch inputs chosen by the classify node.
type Inputs struct {
	Summary    string
	Finance    string
	Experience string
	HR         string
	Technology string
	Notice     string
}

// State is shared by every node. Each field below the inputs is written by
// exactly one node; ErrorMessages is the only field shared across branches.
type State struct {
	HSID           string
	EmailContentID int64
	Files          []queue.MarkdownFile

	// prepare_data
	Markdown map[Source]string
	// classify
	Inputs Inputs

	// summary_hsmt
	Summary  string
	Overview Overview
	// extract_* branches
	Finance    []Requirement
	Experience []Requirement
	HR         []Position
	TechHR     []Position
	Technology []proposals.TechnicalNode
	TechRaw    json.RawMessage
	Notice     Notice

	// post_extraction
	ProposalID int64
	MergedHR   []Position

	mu            sync.Mutex
	ErrorMessages []string
}

func newState(in Input) *State {
	return &State{
		HSID:           in.HSID,
		EmailContentID: in.EmailContentID,
		Files:          in.Files,
		Markdown:       map[Source]string{},
	}
}

func (s *State) addError(node string, err error) {
	s.mu.Lock()
	s.ErrorMessages = append(s.ErrorMessages, fmt.Sprintf("%s: %v", node, err))
	s.mu.Unlock()
}

// Errors returns a copy of the recorded error messages.
func (s *State) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ErrorMessages...)
}

// Has reports whether Markdown for src was loaded.
func (s *State) Has(src Source) bool {
	return strings.TrimSpace(s.Markdown[src]) != ""
}

// empty reports whether no branch produced anything worth persisting.
func (s *State) empty() bool {
	return strings.TrimSpace(s.Summary) == "" &&
		len(s.Finance) == 0 && len(s.Experience) == 0 &&
		len(s.HR) == 0 && len(s.TechHR) == 0 && len(s.Technology) == 0
}

// SourceOf maps a message file type onto a graph source.
func SourceOf(fileType string) (Source, bool) {
	switch Source(strings.ToUpper(strings.TrimSpace(fileType))) {
	case SourceHSMT:
		return SourceHSMT, true
	case SourceTBMT:
		return SourceTBMT, true
	case SourceHSKT:
		return SourceHSKT, true
	case SourceTCDG, "TCDGKT":
		return SourceTCDG, true
	}
	return "", false
}
