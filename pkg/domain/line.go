package domain

// Line is one log line flowing through the pipeline. Sources create it,
// middleware may derive annotated copies, the shipper serializes it.
type Line struct {
	// Line is the formatted log text.
	Line string `json:"line"`

	// File identifies where the line came from. For container logs this is
	// the log file path; journald sets it to the record's hostname so the
	// enrichment stage has a correlation key.
	File string `json:"file,omitempty"`

	// Labels and Annotations carry pod metadata attached by enrichment.
	// Nil until enrichment touches the line.
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// NewLine creates a line with the given text.
func NewLine(text string) *Line {
	return &Line{Line: text}
}

// WithFile sets the origin file identifier.
func (l *Line) WithFile(file string) *Line {
	l.File = file
	return l
}

// Clone returns a deep copy. Enrichment clones before attaching metadata so
// the original line stays untouched.
func (l *Line) Clone() *Line {
	c := &Line{
		Line: l.Line,
		File: l.File,
	}
	if l.Labels != nil {
		c.Labels = make(map[string]string, len(l.Labels))
		for k, v := range l.Labels {
			c.Labels[k] = v
		}
	}
	if l.Annotations != nil {
		c.Annotations = make(map[string]string, len(l.Annotations))
		for k, v := range l.Annotations {
			c.Annotations[k] = v
		}
	}
	return c
}
