package session

import (
	"errors"
	"fmt"
)

// ErrSequenceRegression is returned when a frame carries a sequence that is
// not greater than the last one applied.
var ErrSequenceRegression = errors.New("sequence regression")

// Session is the unit of resume. The zero value is an empty, non-resumable
// session.
type Session struct {
	// ID is the opaque session token issued with Ready. Empty when none.
	ID string `json:"session_id,omitempty"`

	// Sequence is the last dispatched sequence number.
	// Only meaningful when HasSequence is set.
	Sequence    int64 `json:"seq"`
	HasSequence bool  `json:"has_seq"`

	// ResumeURL overrides the gateway endpoint for resumes.
	ResumeURL string `json:"resume_url,omitempty"`
}

// Start records a newly created session. The sequence already advanced by
// the Ready dispatch is kept.
func (s *Session) Start(id, resumeURL string) {
	s.ID = id
	s.ResumeURL = resumeURL
}

// Resumable reports whether a Resume can be attempted with this session.
func (s Session) Resumable() bool {
	return s.ID != "" && s.HasSequence
}

// Advance applies the sequence of a dispatched frame. Sequences must be
// strictly increasing within a session.
func (s *Session) Advance(seq int64) error {
	if s.HasSequence && seq <= s.Sequence {
		return fmt.Errorf("%w: got %d, current %d", ErrSequenceRegression, seq, s.Sequence)
	}
	s.Sequence = seq
	s.HasSequence = true
	return nil
}

// Invalidate clears the session so the next connection identifies afresh.
func (s *Session) Invalidate() {
	*s = Session{}
}

// Clone returns a copy of the session.
func (s Session) Clone() Session {
	return s
}
