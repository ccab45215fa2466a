package sqlsource

import (
	"database/sql"

	"github.com/shopspring/decimal"

	ge "github.com/mimiro-io/grade-export"
)

func userScanner(sortColumns int, withGroup bool, customFields []*ge.FieldDescriptor) func(rows *sql.Rows) (*ge.UserRow, error) {
	return func(rows *sql.Rows) (*ge.UserRow, error) {
		var (
			u       ge.UserRow
			profile [12]sql.NullString
			sorts   = make([]sql.NullString, sortColumns)
			group   sql.NullString
			custom  = make([]sql.NullString, len(customFields))
		)
		dest := []any{&u.ID}
		for i := range profile {
			dest = append(dest, &profile[i])
		}
		for i := range sorts {
			dest = append(dest, &sorts[i])
		}
		if withGroup {
			dest = append(dest, &group)
		}
		for i := range custom {
			dest = append(dest, &custom[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		u.Username = profile[0].String
		u.IDNumber = profile[1].String
		u.FirstName = profile[2].String
		u.LastName = profile[3].String
		u.Email = profile[4].String
		u.Institution = profile[5].String
		u.Department = profile[6].String
		u.Phone1 = profile[7].String
		u.Phone2 = profile[8].String
		u.Address = profile[9].String
		u.City = profile[10].String
		u.Country = profile[11].String
		u.SortKey1, u.SortKey2 = sortKeys(sorts)

		if group.Valid {
			name := group.String
			u.GroupName = &name
		}
		if len(customFields) > 0 {
			u.CustomFields = make(map[string]*string, len(customFields))
			for i, field := range customFields {
				if custom[i].Valid {
					v := custom[i].String
					u.CustomFields[field.ShortName] = &v
				} else {
					u.CustomFields[field.ShortName] = nil
				}
			}
		}
		return &u, nil
	}
}

func gradeScanner(sortColumns int) func(rows *sql.Rows) (*ge.GradeRow, error) {
	return func(rows *sql.Rows) (*ge.GradeRow, error) {
		var (
			g                          ge.GradeRow
			userID, timeModified       sql.NullInt64
			feedback                   sql.NullString
			format                     sql.NullInt64
			hidden, locked, overridden sql.NullInt64
			rawMax, rawMin             decimal.NullDecimal
			sorts                      = make([]sql.NullString, sortColumns)
		)
		dest := []any{
			&g.ID, &userID, &g.ItemID, &g.RawGrade, &g.FinalGrade, &rawMax, &rawMin,
			&feedback, &format, &hidden, &locked, &overridden, &timeModified,
		}
		for i := range sorts {
			dest = append(dest, &sorts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		g.UserID = userID.Int64
		g.RawGradeMax = rawMax.Decimal
		g.RawGradeMin = rawMin.Decimal
		g.Feedback = feedback.String
		g.FeedbackFormat = ge.FeedbackFormat(format.Int64)
		g.Hidden = hidden.Int64 != 0
		g.Locked = locked.Int64 != 0
		g.Overridden = overridden.Int64 != 0
		g.TimeModified = timeModified.Int64
		g.SortKey1, g.SortKey2 = sortKeys(sorts)
		return &g, nil
	}
}

func sortKeys(sorts []sql.NullString) (string, string) {
	var k1, k2 string
	if len(sorts) > 0 {
		k1 = sorts[0].String
	}
	if len(sorts) > 1 {
		k2 = sorts[1].String
	}
	return k1, k2
}
