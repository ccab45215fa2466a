package export

import (
	"slices"
	"strings"

	ge "github.com/mimiro-io/grade-export"
)

// custom profile fields visible to everyone
const profileVisibleAll = 2

var DefaultProfileFields = []string{ge.FieldFullName, "email"}

var fieldTitles = map[string]string{
	"id":             "ID",
	"username":       "Username",
	"idnumber":       "ID number",
	"firstname":      "First name",
	"lastname":       "Last name",
	"email":          "Email address",
	"institution":    "Institution",
	"department":     "Department",
	"phone1":         "Phone",
	"phone2":         "Mobile phone",
	"address":        "Address",
	"city":           "City/town",
	"country":        "Country",
	ge.FieldFullName: "Full name",
	ge.FieldGroup:    "Group",
}

type ProfileFieldOptions struct {
	Fields              []string
	HiddenFields        []string
	ShowHiddenFields    bool
	IncludeCustomFields bool
}

// ProfileFieldOptionsFor combines an export definition with the site wide gradebook settings.
func ProfileFieldOptionsFor(def *ge.ExportDefinition, gradebook *ge.GradebookConfig) ProfileFieldOptions {
	opts := ProfileFieldOptions{
		Fields:              def.ProfileFields,
		ShowHiddenFields:    def.ShowHiddenUserFields,
		IncludeCustomFields: def.IncludeCustomFields,
	}
	if gradebook != nil {
		opts.HiddenFields = gradebook.HiddenUserFields
	}
	return opts
}

// ResolveProfileFields returns the user columns of an export. Full name always comes first
// and replaces first and last name, the group column follows the standard fields and
// custom fields come last.
func ResolveProfileFields(opts ProfileFieldOptions, customFields []*ge.FieldDescriptor) []*ge.FieldDescriptor {
	var hidden []string
	if !opts.ShowHiddenFields {
		for _, f := range opts.HiddenFields {
			hidden = append(hidden, strings.TrimSpace(f))
		}
	}

	names := opts.Fields
	if len(names) == 0 {
		names = DefaultProfileFields
	}

	fields := []*ge.FieldDescriptor{{
		ShortName: ge.FieldFullName,
		FullName:  fieldTitles[ge.FieldFullName],
		Source:    ge.FieldSourceDerived,
	}}
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch {
		case name == ge.FieldFullName || name == "firstname" || name == "lastname":
			continue
		case slices.Contains(hidden, name) || !ge.IsProfileField(name):
			continue
		}
		fields = append(fields, &ge.FieldDescriptor{
			ShortName: name,
			FullName:  fieldTitles[name],
			Source:    ge.FieldSourceProfile,
		})
	}

	fields = append(fields, &ge.FieldDescriptor{
		ShortName: ge.FieldGroup,
		FullName:  fieldTitles[ge.FieldGroup],
		Source:    ge.FieldSourceGroup,
	})

	if !opts.IncludeCustomFields {
		return fields
	}
	for _, field := range customFields {
		if slices.Contains(hidden, field.ShortName) {
			continue
		}
		if field.Visible != profileVisibleAll && !opts.ShowHiddenFields {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}
