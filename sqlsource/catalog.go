package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	ge "github.com/mimiro-io/grade-export"
)

func (s *Source) Course(ctx context.Context, courseID int64) (*ge.Course, error) {
	query, args, err := s.sb.Select("id", "shortname", "fullname").
		From(s.table("course")).
		Where(sq.Eq{"id": courseID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var c ge.Course
	var short, full sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &short, &full)
	if err == sql.ErrNoRows {
		return nil, ge.Errorf(ge.LayerErrorNotFound, "course %d not found", courseID)
	}
	if err != nil {
		return nil, err
	}
	c.ShortName, c.FullName = short.String, full.String
	return &c, nil
}

// GradeItems returns the grade items of the course in gradebook order.
func (s *Source) GradeItems(ctx context.Context, courseID int64) (*ge.GradeItems, error) {
	query, args, err := s.sb.Select(
		"id", "courseid", "itemname", "itemtype", "itemmodule", "idnumber",
		"gradetype", "grademax", "grademin", "decimals", "sortorder", "needsupdate").
		From(s.table("grade_items")).
		Where(sq.Eq{"courseid": courseID}).
		OrderBy("sortorder ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query grade items: %w", err)
	}
	defer rows.Close()

	items := ge.NewGradeItems()
	for rows.Next() {
		var (
			item                             ge.GradeItem
			name, itemType, module, idNumber sql.NullString
			gradeMax, gradeMin               decimal.NullDecimal
			decimals                         sql.NullInt64
			needsUpdate                      sql.NullInt64
		)
		err := rows.Scan(&item.ID, &item.CourseID, &name, &itemType, &module, &idNumber,
			&item.GradeType, &gradeMax, &gradeMin, &decimals, &item.SortOrder, &needsUpdate)
		if err != nil {
			return nil, err
		}
		item.ItemName = name.String
		item.ItemType = itemType.String
		item.ItemModule = module.String
		item.IDNumber = idNumber.String
		item.GradeMax = gradeMax.Decimal
		item.GradeMin = gradeMin.Decimal
		if decimals.Valid {
			points := int(decimals.Int64)
			item.DecimalPoints = &points
		}
		item.NeedsUpdate = needsUpdate.Int64 != 0
		items.Add(&item)
	}
	return items, rows.Err()
}

// CustomProfileFields resolves custom profile field short names to their descriptors.
// Unknown names are skipped. The result follows the order of shortNames.
func (s *Source) CustomProfileFields(ctx context.Context, shortNames []string) ([]*ge.FieldDescriptor, error) {
	if len(shortNames) == 0 {
		return nil, nil
	}
	query, args, err := s.sb.Select("id", "shortname", "name", "datatype", "defaultdata", "visible").
		From(s.table("user_info_field")).
		Where(sq.Eq{"shortname": shortNames}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query custom profile fields: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*ge.FieldDescriptor)
	for rows.Next() {
		var (
			fd                     = &ge.FieldDescriptor{Source: ge.FieldSourceCustom}
			name, dataType, defVal sql.NullString
			visible                sql.NullInt64
		)
		if err := rows.Scan(&fd.CustomID, &fd.ShortName, &name, &dataType, &defVal, &visible); err != nil {
			return nil, err
		}
		fd.FullName = name.String
		fd.DataType = dataType.String
		fd.Default = defVal.String
		fd.Visible = int(visible.Int64)
		found[fd.ShortName] = fd
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := make([]*ge.FieldDescriptor, 0, len(found))
	for _, name := range shortNames {
		if fd, ok := found[name]; ok {
			res = append(res, fd)
			delete(found, name)
		} else {
			s.logger.Warn("custom profile field not found", "field", name)
		}
	}
	return res, nil
}
