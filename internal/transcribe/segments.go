package transcribe

import "strings"

// Segment is a run of words shown as one clickable transcript line.
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Order     int     `json:"order"`
}

// GroupOptions bounds the size of a segment.
type GroupOptions struct {
	MaxWords    int     // close the segment once it holds this many words
	MaxDuration float64 // seconds; close once the segment spans at least this long
}

// DefaultGroupOptions returns 15 words / 10 seconds.
func DefaultGroupOptions() GroupOptions {
	return GroupOptions{MaxWords: 15, MaxDuration: 10}
}

func (o GroupOptions) withDefaults() GroupOptions {
	d := DefaultGroupOptions()
	if o.MaxWords <= 0 {
		o.MaxWords = d.MaxWords
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = d.MaxDuration
	}
	return o
}

// GroupSegments groups time-ordered words into sentence-like segments in a
// single pass. A segment closes after a word ending in '.', '!' or '?', when
// it reaches MaxWords, when it spans MaxDuration seconds, or at the last word.
// Segments with no text are dropped; Order counts emitted segments only.
func GroupSegments(words []Word, opts GroupOptions) []Segment {
	opts = opts.withDefaults()
	segments := []Segment{}
	if len(words) == 0 {
		return segments
	}

	var pending []Word
	for i, w := range words {
		pending = append(pending, w)
		duration := w.End - pending[0].Start

		closeSegment := endsSentence(w.Text) ||
			len(pending) >= opts.MaxWords ||
			duration >= opts.MaxDuration ||
			i == len(words)-1
		if !closeSegment {
			continue
		}

		if text := joinWords(pending); text != "" {
			segments = append(segments, Segment{
				Text:      text,
				StartTime: pending[0].Start,
				EndTime:   pending[len(pending)-1].End,
				Order:     len(segments),
			})
		}
		pending = pending[:0]
	}
	return segments
}

func endsSentence(text string) bool {
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// joinWords joins trimmed word texts with single spaces, skipping blanks.
func joinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
