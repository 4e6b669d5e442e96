package coaching

// Kind classifies a feedback item by the marker the evaluator put in front of it.
type Kind string

const (
	KindPositive Kind = "positive"
	KindNegative Kind = "negative"
	KindHint     Kind = "hint"
	KindNeutral  Kind = "neutral"
)

// FeedbackItem is one criterion's latest verdict.
type FeedbackItem struct {
	CriterionID string `json:"criterionId"`
	Kind        Kind   `json:"kind"`
	Text        string `json:"text"`
}

// Feedback maps criterion id to its latest item. A later evaluation for the
// same criterion replaces the earlier one.
type Feedback map[string]FeedbackItem

// Clone returns an independent copy.
func (f Feedback) Clone() Feedback {
	if f == nil {
		return Feedback{}
	}
	out := make(Feedback, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge overlays next on top of f and returns the result.
func (f Feedback) Merge(next Feedback) Feedback {
	out := f.Clone()
	for k, v := range next {
		out[k] = v
	}
	return out
}

// Summary counts items per kind.
type Summary struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Hint     int `json:"hint"`
	Neutral  int `json:"neutral"`
}

// Summarize tallies the kinds present in f.
func (f Feedback) Summarize() Summary {
	var s Summary
	for _, item := range f {
		switch item.Kind {
		case KindPositive:
			s.Positive++
		case KindNegative:
			s.Negative++
		case KindHint:
			s.Hint++
		default:
			s.Neutral++
		}
	}
	return s
}

// CueKind is the angle a suggested question takes.
type CueKind string

const (
	CuePerson      CueKind = "person"
	CueFeeling     CueKind = "feeling"
	CuePerspective CueKind = "perspective"
	CueFraming     CueKind = "framing"
)

// ValidCueKind reports whether k is one of the known kinds.
func ValidCueKind(k CueKind) bool {
	switch k {
	case CuePerson, CueFeeling, CuePerspective, CueFraming:
		return true
	}
	return false
}

// Cue is a suggested next question for the canvasser.
type Cue struct {
	Text      string  `json:"text" jsonschema:"required,description=The question the canvasser could ask next"`
	Rationale string  `json:"rationale" jsonschema:"description=Why this question helps right now"`
	Kind      CueKind `json:"kind" jsonschema:"enum=person,enum=feeling,enum=perspective,enum=framing"`
}
