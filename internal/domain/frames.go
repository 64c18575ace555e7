package domain

// CandidateFrame is a timestamp-indexed image pulled from the source video.
// It lives only for the duration of a pipeline run.
type CandidateFrame struct {
	Index     int
	Timestamp float64
	Image     []byte
}

// Verdict is the structured result of one independent per-image judgment.
type Verdict struct {
	Educational bool   `json:"educational"`
	Visible     string `json:"visible"`
	Confidence  int    `json:"confidence"`
}

// VerifiedFrame is a candidate that passed filtering and verification.
// Invariant: Confidence >= the configured threshold and Relevant == true.
type VerifiedFrame struct {
	Timestamp  float64
	RawKey     string
	Image      []byte
	Visible    string
	Confidence int
	Relevant   bool
}

// Annotation instruction types.
const (
	AnnotationArrow     = "arrow"
	AnnotationLabel     = "label"
	AnnotationHighlight = "highlight_box"
	AnnotationCircle    = "circle"
	AnnotationUnderline = "underline"
)

// AnnotationInstruction describes one drawing operation in image-relative
// coordinates (0..1 on both axes).
type AnnotationInstruction struct {
	Type string  `json:"type"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	Text string  `json:"text,omitempty"`
}

// Example is one worked example attached to a content unit or to the
// document's transcript-level examples section.
type Example struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Explanation string `json:"explanation,omitempty"`
}

// ContentUnit pairs one verified frame with its grounded explanation,
// examples, and annotation instructions.
type ContentUnit struct {
	Timestamp    float64                 `json:"timestamp"`
	Title        string                  `json:"title"`
	Caption      string                  `json:"caption"`
	Explanation  string                  `json:"explanation"`
	Examples     []Example               `json:"examples,omitempty"`
	Annotations  []AnnotationInstruction `json:"annotations,omitempty"`
	Visible      string                  `json:"visible"`
	Confidence   int                     `json:"confidence"`
	RawKey       string                  `json:"raw_key"`
	AnnotatedKey string                  `json:"annotated_key,omitempty"`
	Synthetic    bool                    `json:"synthetic,omitempty"`
}
