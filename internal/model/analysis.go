package model

// Seniority levels assigned to person profiles.
const (
	SeniorityExecutive = "Executive"
	SenioritySenior    = "Senior"
	SeniorityMid       = "Mid-Level"
	SeniorityJunior    = "Junior"
	SeniorityUnknown   = "Unknown"
)

// ValidSeniority reports whether s is a recognised seniority level.
func ValidSeniority(s string) bool {
	switch s {
	case SeniorityExecutive, SenioritySenior, SeniorityMid, SeniorityJunior, SeniorityUnknown:
		return true
	}
	return false
}

// OrgProfile is the structured business profile of an organization.
type OrgProfile struct {
	Summary          string   `json:"summary"`
	CoreBusiness     string   `json:"core_business"`
	TargetMarket     string   `json:"target_market"`
	BusinessModel    string   `json:"business_model"`
	IndustryTags     []string `json:"industry_tags"`
	Technology       string   `json:"technology"`
	IndustryPosition string   `json:"industry_position"`
	Error            bool     `json:"error,omitempty"`
}

// PersonProfile is the structured professional profile of a person.
type PersonProfile struct {
	Summary                 string   `json:"summary,omitempty"`
	FunctionalExpertise     []string `json:"functional_expertise"`
	DomainExpertise         []string `json:"domain_expertise"`
	SeniorityLevel          string   `json:"seniority_level"`
	YearsExperienceEstimate int      `json:"years_experience_estimate"`
	KeyAchievements         string   `json:"key_achievements"`
}

// Analysis is the output of the analysis chain. Exactly one of Org or Person
// is set, matching the entity kind.
type Analysis struct {
	Org    *OrgProfile      `json:"organization,omitempty"`
	Person *PersonProfile   `json:"person,omitempty"`
	Source EnrichmentSource `json:"source"`
}

// Summary returns the generated summary text for either profile shape.
func (a *Analysis) Summary() string {
	switch {
	case a == nil:
		return ""
	case a.Org != nil:
		return a.Org.Summary
	case a.Person != nil:
		return a.Person.Summary
	}
	return ""
}

// Placeholder reports whether the analysis is a minimal stub rather than a
// genuine result.
func (a *Analysis) Placeholder() bool {
	if a == nil {
		return true
	}
	if a.Org != nil {
		return a.Org.Error
	}
	if a.Person != nil {
		return a.Person.SeniorityLevel == SeniorityUnknown && len(a.Person.FunctionalExpertise) == 0
	}
	return true
}
