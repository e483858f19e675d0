package models

// Question is one static entry of the survey. Index is its 0-based position.
// A question with no options is answered with free-form text.
type Question struct {
	Index   int      `yaml:"-"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options,omitempty"`
}

// IsOpenText reports whether the question expects a typed answer.
func (q Question) IsOpenText() bool {
	return len(q.Options) == 0
}

// Region is a top-level entry of the region catalog. A region with no
// subregions is a leaf region.
type Region struct {
	Name       string   `yaml:"name"`
	Subregions []string `yaml:"subregions,omitempty"`
}

// IsLeaf reports whether the region has no subregions.
func (r Region) IsLeaf() bool {
	return len(r.Subregions) == 0
}
