// internal/autofill/report.go
package autofill

// Report is a serialisable summary of one discovery pass.
type Report struct {
	Roots      []string          `yaml:"roots" json:"roots"`
	Anchors    []AnchorReport    `yaml:"anchors" json:"anchors"`
	Candidates []CandidateReport `yaml:"candidates" json:"candidates"`
	Path       Path              `yaml:"path,omitempty" json:"path,omitempty"`
	Selected   *CandidateReport  `yaml:"selected,omitempty" json:"selected,omitempty"`
	User       string            `yaml:"user,omitempty" json:"user,omitempty"`
	Password   string            `yaml:"password,omitempty" json:"password,omitempty"`
	Error      string            `yaml:"error,omitempty" json:"error,omitempty"`
}

// AnchorReport describes one anchor.
type AnchorReport struct {
	Role  string `yaml:"role" json:"role"`
	Field string `yaml:"field" json:"field"`
}

// CandidateReport describes one candidate form.
type CandidateReport struct {
	Form     string `yaml:"form" json:"form"`
	Bucket   string `yaml:"bucket" json:"bucket"`
	Role     string `yaml:"role" json:"role"`
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// NewReport summarises a resolution. err is the discovery error, if any.
func NewReport(res *Resolution, err error) *Report {
	r := &Report{}
	if err != nil {
		r.Error = err.Error()
	}
	if res == nil {
		return r
	}
	for _, root := range res.Roots {
		r.Roots = append(r.Roots, root.Describe())
	}
	if cls := res.Classification; cls != nil {
		for _, a := range cls.Anchors {
			r.Anchors = append(r.Anchors, AnchorReport{Role: a.Role.String(), Field: a.Field.Describe()})
		}
		for _, c := range cls.Candidates {
			r.Candidates = append(r.Candidates, candidateReport(c))
		}
		r.Path = cls.Path
	}
	if res.Selected != nil {
		sel := candidateReport(res.Selected)
		r.Selected = &sel
	}
	r.User = describe(res.User)
	r.Password = describe(res.Password)
	return r
}

func candidateReport(c *Candidate) CandidateReport {
	form := "(no form)"
	if c.Form != nil {
		form = c.Form.Describe()
	}
	return CandidateReport{
		Form:     form,
		Bucket:   keyOf(c).String(),
		Role:     c.Role.String(),
		User:     describe(c.User),
		Password: describe(c.Password),
	}
}

func describe(n Node) string {
	if n == nil {
		return ""
	}
	return n.Describe()
}
