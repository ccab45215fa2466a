package grade_export

import (
	"strconv"
)

type FieldSource int

const (
	FieldSourceProfile FieldSource = iota
	FieldSourceGroup
	FieldSourceCustom
	FieldSourceDerived
)

const (
	FieldFullName = "fullname"
	FieldGroup    = "group"
)

// FieldDescriptor describes one user column, resolved before iteration starts.
type FieldDescriptor struct {
	ShortName string
	FullName  string
	Source    FieldSource
	CustomID  int64
	DataType  string
	Default   string
	Visible   int
}

// profileAccessors are the standard user fields that can be exported
var profileAccessors = map[string]func(u *UserRow) string{
	"id":          func(u *UserRow) string { return strconv.FormatInt(u.ID, 10) },
	"username":    func(u *UserRow) string { return u.Username },
	"idnumber":    func(u *UserRow) string { return u.IDNumber },
	"firstname":   func(u *UserRow) string { return u.FirstName },
	"lastname":    func(u *UserRow) string { return u.LastName },
	"email":       func(u *UserRow) string { return u.Email },
	"institution": func(u *UserRow) string { return u.Institution },
	"department":  func(u *UserRow) string { return u.Department },
	"phone1":      func(u *UserRow) string { return u.Phone1 },
	"phone2":      func(u *UserRow) string { return u.Phone2 },
	"address":     func(u *UserRow) string { return u.Address },
	"city":        func(u *UserRow) string { return u.City },
	"country":     func(u *UserRow) string { return u.Country },
}

// IsProfileField reports whether name is a standard user field.
func IsProfileField(name string) bool {
	_, ok := profileAccessors[name]
	return ok
}

func (fd *FieldDescriptor) Value(u *UserRow) string {
	switch fd.Source {
	case FieldSourceCustom:
		if v, ok := u.CustomFields[fd.ShortName]; ok && v != nil {
			if *v != "" || isNumeric(*v) {
				return *v
			}
		}
		return fd.Default
	case FieldSourceGroup:
		if u.GroupName == nil {
			return ""
		}
		return *u.GroupName
	case FieldSourceDerived:
		if fd.ShortName == FieldFullName {
			return u.FirstName + " " + u.LastName
		}
		return ""
	default:
		accessor, ok := profileAccessors[fd.ShortName]
		if !ok {
			return ""
		}
		return accessor(u)
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
