package contracts

// NeutralScore is the score of "no opinion" on the 0-100 scale
const NeutralScore = 50.0

// Status tags why a directive produced its score
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoData           Status = "no_data"           // a required input could not be fetched
	StatusInsufficientData Status = "insufficient_data" // too few observations
	StatusStale            Status = "stale"             // strict freshness rejected an input
	StatusUnavailable      Status = "unavailable"       // algorithm not implemented or disabled
)

// DebugFailure is the debug key carrying the machine-readable failure marker
const DebugFailure = "failure"

// DirectiveResult is one directive's score. Never cached.
// A non-ok status still carries a bounded (neutral) score.
type DirectiveResult struct {
	Directive string                 `json:"directive"`
	Name      string                 `json:"name"`
	Score     float64                `json:"score"`
	MaxScore  float64                `json:"max_score"`
	Signal    string                 `json:"signal"`
	Status    Status                 `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	Debug     map[string]interface{} `json:"debug,omitempty"`
	Composite *CompositeResult       `json:"composite,omitempty"`
}

// OK reports whether the score reflects real data
func (r DirectiveResult) OK() bool {
	return r.Status == StatusOK
}

// Normalized rescales the score to 0-100
func (r DirectiveResult) Normalized() float64 {
	if r.MaxScore <= 0 {
		return NeutralScore
	}
	return r.Score / r.MaxScore * 100
}

// Failure returns the failure marker, empty for ok results
func (r DirectiveResult) Failure() string {
	if r.Debug == nil {
		return ""
	}
	s, _ := r.Debug[DebugFailure].(string)
	return s
}

// ChildResult records one composite member's participation
type ChildResult struct {
	Directive string  `json:"directive"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"` // normalized 0-100
	Status    Status  `json:"status"`
	Included  bool    `json:"included"`
	Reason    string  `json:"reason,omitempty"`
	Signal    string  `json:"signal,omitempty"`
}

// CompositeResult is the weighted aggregate of child directives
type CompositeResult struct {
	Composite           string                 `json:"composite"`
	Score               float64                `json:"score"`
	Signals             []string               `json:"signals"`
	Children            []ChildResult          `json:"children"`
	ParticipatingWeight float64                `json:"participating_weight"`
	Debug               map[string]interface{} `json:"debug,omitempty"`
}
