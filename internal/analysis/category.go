package analysis

import "strings"

// Category groups meetings by the kind of work they serve.
type Category string

const (
	Project     Category = "Project"
	Department  Category = "Department"
	Client      Category = "Client"
	Recruitment Category = "Recruitment"
	Training    Category = "Training"
	Other       Category = "Other"
)

// Categories lists every category in precedence order.
var Categories = []Category{Project, Department, Client, Recruitment, Training, Other}

type rule struct {
	category Category
	keywords []string
}

// rules are checked in order; the first keyword found in a title decides.
var rules = []rule{
	{Project, []string{"project"}},
	{Department, []string{"department", "team"}},
	{Client, []string{"client", "customer"}},
	{Recruitment, []string{"interview"}},
	{Training, []string{"training", "workshop"}},
}

// Categorize assigns a category to a meeting title.
func Categorize(title string) Category {
	lower := strings.ToLower(title)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return Other
}
