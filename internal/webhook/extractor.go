package webhook

import (
	"regexp"
	"strings"
)

// ExtractFields performs best-effort field extraction from flat form data.
// Website builders post whatever labels the form author chose, so keys are
// matched against known aliases instead of exact names.
func ExtractFields(data map[string]string) IntakeRequest {
	var result IntakeRequest
	var firstName, lastName string

	for key, value := range data {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(key))

		switch {
		case matchesAny(k, firstNamePatterns):
			firstName = value
		case matchesAny(k, lastNamePatterns):
			lastName = value
		case matchesAny(k, fullNamePatterns):
			result.Name = value
		case matchesAny(k, emailPatterns):
			if emailRegex.MatchString(value) {
				result.Email = value
			}
		case matchesAny(k, phonePatterns):
			result.Phone = value
		case matchesAny(k, firmPatterns):
			result.FirmName = value
		case matchesAny(k, practiceAreaPatterns):
			result.PracticeArea = value
		case matchesAny(k, monthlyLeadsPatterns):
			result.MonthlyLeads = value
		case matchesAny(k, primaryNeedPatterns):
			result.PrimaryNeed = value
		case matchesAny(k, sourcePatterns):
			result.Source = value
		}
	}

	if result.Name == "" {
		result.Name = strings.TrimSpace(firstName + " " + lastName)
	}

	return result
}

var (
	firstNamePatterns    = []string{"first_name", "firstname", "first name", "given_name", "givenname", "fname"}
	lastNamePatterns     = []string{"last_name", "lastname", "last name", "family_name", "familyname", "surname", "lname"}
	fullNamePatterns     = []string{"name", "full_name", "fullname", "your_name", "your name", "contact_name"}
	emailPatterns        = []string{"email", "e-mail", "e_mail", "emailaddress", "email_address", "mail"}
	phonePatterns        = []string{"phone", "tel", "telephone", "phonenumber", "phone_number", "mobile", "cell"}
	firmPatterns         = []string{"firm", "firm_name", "firmname", "company", "company_name", "organization", "practice"}
	practiceAreaPatterns = []string{"practice_area", "practicearea", "area_of_law", "specialty", "focus"}
	monthlyLeadsPatterns = []string{"monthly_leads", "monthlyleads", "leads_per_month", "lead_volume", "volume"}
	primaryNeedPatterns  = []string{"primary_need", "primaryneed", "need", "challenge", "message", "comments", "goal"}
	sourcePatterns       = []string{"source", "utm_source", "referrer", "lead_source"}
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var labelReplacer = strings.NewReplacer("-", "", "_", "", " ", "")

func matchesAny(label string, patterns []string) bool {
	// Normalize: strip spaces, dashes, underscores for fuzzy matching
	normalized := labelReplacer.Replace(label)
	for _, p := range patterns {
		if normalized == labelReplacer.Replace(p) {
			return true
		}
	}
	return false
}
