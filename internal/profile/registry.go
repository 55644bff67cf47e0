package profile

// Registry is an ordered list of profiles. Order is precedence: later profiles
// override earlier ones, and the first profile is the general default.
type Registry []Profile

// DefaultRegistry is the starter registry written by "profiles init": a
// single JPEG profile that caps the smallest side at 1080 pixels.
func DefaultRegistry() Registry {
	p := New("Default", FormatJPEG, DefaultQuality)
	side := 1080
	p.MaxSmallestSide = &side
	return Registry{p}
}

// Default returns the first profile, or false for an empty registry.
func (r Registry) Default() (Profile, bool) {
	if len(r) == 0 {
		return Profile{}, false
	}
	return r[0], true
}

// Find returns the profile with the given name.
func (r Registry) Find(name string) (Profile, bool) {
	for _, p := range r {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Names lists profile names in registry order.
func (r Registry) Names() []string {
	names := make([]string, len(r))
	for i, p := range r {
		names[i] = p.Name
	}
	return names
}

// Validate checks every profile and that names are unique.
func (r Registry) Validate() error {
	seen := make(map[string]bool, len(r))
	for _, p := range r {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return &ConfigError{Profile: p.Name, Field: "name", Reason: "duplicate profile name"}
		}
		seen[p.Name] = true
	}
	return nil
}

// Selection is the outcome of SelectWithResults.
type Selection struct {
	// Profile is nil when no profile matched.
	Profile *Profile
	// Results holds the evaluation map of every profile keyed by name.
	Results map[string]map[string]bool
}

// Matched reports whether a profile was selected.
func (s Selection) Matched() bool {
	return s.Profile != nil
}

// ConditionResults returns the evaluation map of the selected profile.
func (s Selection) ConditionResults() map[string]bool {
	if s.Profile == nil {
		return map[string]bool{}
	}
	return s.Results[s.Profile.Name]
}

// Select returns the effective profile for props, scanning from the last
// profile to the first. Reverse order is part of the contract: a profile
// declared later wins over an earlier one with overlapping conditions.
func Select(props Properties, reg Registry) (*Profile, bool) {
	for i := len(reg) - 1; i >= 0; i-- {
		if reg[i].Conditions.Matches(props) {
			p := reg[i]
			return &p, true
		}
	}
	return nil, false
}

// SelectWithResults is Select plus the evaluation map of every profile.
func SelectWithResults(props Properties, reg Registry) Selection {
	evals := make([]map[string]bool, len(reg))
	results := make(map[string]map[string]bool, len(reg))
	for i, p := range reg {
		evals[i] = p.Conditions.Evaluate(props)
		results[p.Name] = evals[i]
	}

	sel := Selection{Results: results}
	for i := len(reg) - 1; i >= 0; i-- {
		if allTrue(evals[i]) {
			p := reg[i]
			sel.Profile = &p
			break
		}
	}
	return sel
}
