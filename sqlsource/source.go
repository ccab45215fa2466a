// Package sqlsource reads the user and grade streams of a course straight from the
// gradebook tables of a Moodle database.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/benbjohnson/clock"

	ge "github.com/mimiro-io/grade-export"
)

var _ ge.RowSource = (*Source)(nil)

const (
	defaultTablePrefix = "mdl_"
	contextLevelCourse = 50
	enrolStatusActive  = 0
	enrolStatusEnabled = 0
)

// sortable user fields, keyed by the accepted names
var sortFields = map[string]string{
	"id":          "u.id",
	"u.id":        "u.id",
	"u.firstname": "u.firstname",
	"u.lastname":  "u.lastname",
	"u.email":     "u.email",
	"u.username":  "u.username",
	"u.idnumber":  "u.idnumber",
	ge.GroupNameField: ge.GroupNameField,
	"firstname":   "u.firstname",
	"lastname":    "u.lastname",
}

var userColumns = []string{
	"u.id", "u.username", "u.idnumber", "u.firstname", "u.lastname", "u.email",
	"u.institution", "u.department", "u.phone1", "u.phone2", "u.address", "u.city", "u.country",
}

var gradeColumns = []string{
	"g.id", "g.userid", "g.itemid", "g.rawgrade", "g.finalgrade", "g.rawgrademax", "g.rawgrademin",
	"g.feedback", "g.feedbackformat", "g.hidden", "g.locked", "g.overridden", "g.timemodified",
}

type Config struct {
	Driver              string
	TablePrefix         string
	GradebookRoles      []int64
	CustomProfileFields []string
}

// NewConfig combines the database and gradebook sections of the service config.
func NewConfig(db *ge.DatabaseConfig, gradebook *ge.GradebookConfig) Config {
	conf := Config{Driver: db.Driver, TablePrefix: db.TablePrefix}
	if gradebook != nil {
		conf.GradebookRoles = gradebook.GradebookRoles
		conf.CustomProfileFields = gradebook.CustomProfileFields
	}
	return conf
}

type Source struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	conf   Config
	prefix string
	clock  clock.Clock
	logger ge.Logger
}

func New(db *sql.DB, conf Config, logger ge.Logger) (*Source, error) {
	driver, err := DriverName(conf.Driver)
	if err != nil {
		return nil, err
	}
	prefix := conf.TablePrefix
	if prefix == "" {
		prefix = defaultTablePrefix
	}
	return &Source{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholderFormat(driver)),
		conf:   conf,
		prefix: prefix,
		clock:  clock.New(),
		logger: logger,
	}, nil
}

// WithClock replaces the clock used to decide whether enrolments are active.
func (s *Source) WithClock(c clock.Clock) *Source {
	s.clock = c
	return s
}

func (s *Source) table(name string) string {
	return s.prefix + name
}

/******************************************************************************/

func (s *Source) CourseNeedsRegrade(ctx context.Context, courseID int64) (bool, error) {
	query, args, err := s.sb.Select("needsupdate").
		From(s.table("grade_items")).
		Where(sq.Eq{"courseid": courseID, "itemtype": ge.ItemTypeCourse}).
		ToSql()
	if err != nil {
		return false, err
	}
	var needsUpdate int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&needsUpdate)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return needsUpdate != 0, nil
}

func (s *Source) OpenUsers(ctx context.Context, q ge.StreamQuery) (ge.Cursor[*ge.UserRow], error) {
	base, err := s.streamBase(ctx, q)
	if err != nil {
		return nil, err
	}

	var customFields []*ge.FieldDescriptor
	if q.IncludeCustomFields {
		customFields, err = s.CustomProfileFields(ctx, s.conf.CustomProfileFields)
		if err != nil {
			return nil, err
		}
	}

	builder := s.usersQuery(base, customFields)
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("opening user stream", "course", q.CourseID, "sql", query)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	cursor, err := newRowCursor(rows, userScanner(len(base.orderColumns), q.GroupID == 0, customFields))
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return cursor, nil
}

func (s *Source) OpenGrades(ctx context.Context, q ge.StreamQuery, itemIDs []int64) (ge.Cursor[*ge.GradeRow], error) {
	base, err := s.streamBase(ctx, q)
	if err != nil {
		return nil, err
	}

	builder := s.gradesQuery(base, itemIDs)
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("opening grade stream", "course", q.CourseID, "items", len(itemIDs), "sql", query)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}
	cursor, err := newRowCursor(rows, gradeScanner(len(base.orderColumns)))
	if err != nil {
		return nil, fmt.Errorf("read grades: %w", err)
	}
	return cursor, nil
}

func (s *Source) usersQuery(base *streamBase, customFields []*ge.FieldDescriptor) sq.SelectBuilder {
	columns := append([]string{}, userColumns...)
	columns = append(columns, base.orderColumns...)
	if base.query.GroupID == 0 {
		columns = append(columns, "go.name AS groupname")
	}
	builder := s.sb.Select(columns...).From(s.table("user") + " u")
	builder = base.applyJoins(builder, func(b sq.SelectBuilder) sq.SelectBuilder {
		for i, field := range customFields {
			alias := "cf" + strconv.Itoa(i)
			b = b.LeftJoin(fmt.Sprintf("(SELECT userid, data FROM %s WHERE fieldid = ?) %s ON u.id = %s.userid",
				s.table("user_info_data"), alias, alias), field.CustomID).
				Column(alias + ".data AS " + alias + "_data")
		}
		return b
	})
	return base.applyWhere(builder).OrderBy(base.orderBy...)
}

func (s *Source) gradesQuery(base *streamBase, itemIDs []int64) sq.SelectBuilder {
	columns := append([]string{}, gradeColumns...)
	columns = append(columns, base.orderColumns...)
	builder := s.sb.Select(columns...).
		From(s.table("grade_grades") + " g").
		Join(s.table("user") + " u ON g.userid = u.id")
	builder = base.applyJoins(builder, nil)
	return base.applyWhere(builder).
		Where(sq.Eq{"g.itemid": itemIDs}).
		OrderBy(append(append([]string{}, base.orderBy...), "g.itemid ASC")...)
}

// SuspendedUserIDs returns users enrolled in the course without any active enrolment,
// that is suspended, not started yet or expired.
func (s *Source) SuspendedUserIDs(ctx context.Context, courseID int64) (map[int64]struct{}, error) {
	active, activeArgs, err := s.enrolledQuery(courseID, true).ToSql()
	if err != nil {
		return nil, err
	}
	query, args, err := s.sb.Select("ue.userid").Distinct().
		From(s.table("user_enrolments") + " ue").
		Join(s.table("enrol") + " e ON e.id = ue.enrolid").
		Where(sq.Eq{"e.courseid": courseID}).
		Where("ue.userid NOT IN ("+active+")", activeArgs...).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query suspended users: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = struct{}{}
	}
	return res, rows.Err()
}

/******************************************************************************/

// streamBase holds the joins and ordering shared by the user and grade queries, so both
// streams are guaranteed to use the same order.
type streamBase struct {
	s            *Source
	query        ge.StreamQuery
	enrolled     string
	enrolledArgs []any
	roles        string
	rolesArgs    []any
	orderColumns []string
	orderBy      []string
}

func (s *Source) streamBase(ctx context.Context, q ge.StreamQuery) (*streamBase, error) {
	base := &streamBase{s: s, query: q}

	for i, key := range q.Order {
		field, ok := sortFields[key.Field]
		if !ok {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "unsupported sort field %q", key.Field)
		}
		if field == ge.GroupNameField && q.GroupID != 0 {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "cannot sort by group name when filtering by group")
		}
		alias := "usrt" + strconv.Itoa(i+1)
		base.orderColumns = append(base.orderColumns, field+" AS "+alias)
		base.orderBy = append(base.orderBy, alias+" "+string(ge.ParseSortDirection(string(key.Direction))))
	}
	if len(base.orderBy) == 0 {
		base.orderColumns = []string{"u.id AS usrt1"}
		base.orderBy = []string{"usrt1 ASC"}
	}

	var err error
	base.enrolled, base.enrolledArgs, err = s.enrolledQuery(q.CourseID, q.OnlyActive).ToSql()
	if err != nil {
		return nil, err
	}

	if len(s.conf.GradebookRoles) > 0 {
		contexts, err := s.relatedContextIDs(ctx, q.CourseID)
		if err != nil {
			return nil, err
		}
		base.roles, base.rolesArgs, err = sq.Select("ra.userid").Distinct().
			From(s.table("role_assignments") + " ra").
			Where(sq.Eq{"ra.roleid": s.conf.GradebookRoles}).
			Where(sq.Eq{"ra.contextid": contexts}).
			ToSql()
		if err != nil {
			return nil, err
		}
	}
	return base, nil
}

func (b *streamBase) applyJoins(builder sq.SelectBuilder, extra func(sq.SelectBuilder) sq.SelectBuilder) sq.SelectBuilder {
	s := b.s
	builder = builder.Join("("+b.enrolled+") je ON je.id = u.id", b.enrolledArgs...)
	if b.query.GroupID != 0 {
		builder = builder.Join(s.table("groups_members") + " gm ON gm.userid = u.id")
	} else {
		builder = builder.
			LeftJoin(s.table("groups_members") + " gm ON gm.userid = u.id").
			LeftJoin(s.table("groups") + " go ON gm.groupid = go.id")
	}
	if extra != nil {
		builder = extra(builder)
	}
	if b.roles != "" {
		builder = builder.Join("("+b.roles+") rainner ON rainner.userid = u.id", b.rolesArgs...)
	}
	return builder
}

func (b *streamBase) applyWhere(builder sq.SelectBuilder) sq.SelectBuilder {
	builder = builder.Where(sq.Eq{"u.deleted": 0})
	if b.query.GroupID != 0 {
		return builder.Where(sq.Eq{"gm.groupid": b.query.GroupID})
	}
	return builder.Where(sq.Eq{"go.courseid": b.query.CourseID})
}

// enrolledQuery selects the ids of users enrolled in the course. Built with question
// placeholders as it is embedded in other statements.
func (s *Source) enrolledQuery(courseID int64, onlyActive bool) sq.SelectBuilder {
	q := sq.Select("eu.id").Distinct().
		From(s.table("user") + " eu").
		Join(s.table("user_enrolments") + " ue ON ue.userid = eu.id").
		Join(s.table("enrol") + " e ON e.id = ue.enrolid").
		Where(sq.Eq{"e.courseid": courseID}).
		Where(sq.Eq{"eu.deleted": 0})
	if onlyActive {
		now := s.clock.Now().Unix()
		q = q.Where(sq.Eq{"ue.status": enrolStatusActive}).
			Where(sq.Eq{"e.status": enrolStatusEnabled}).
			Where(sq.Lt{"ue.timestart": now}).
			Where(sq.Or{sq.Eq{"ue.timeend": 0}, sq.Gt{"ue.timeend": now}})
	}
	return q
}

// relatedContextIDs returns the course context and all its parent contexts.
func (s *Source) relatedContextIDs(ctx context.Context, courseID int64) ([]int64, error) {
	query, args, err := s.sb.Select("path").
		From(s.table("context")).
		Where(sq.Eq{"contextlevel": contextLevelCourse, "instanceid": courseID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var path string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&path)
	if err == sql.ErrNoRows {
		return nil, ge.Errorf(ge.LayerErrorNotFound, "no context for course %d", courseID)
	}
	if err != nil {
		return nil, err
	}
	return parseContextPath(path)
}

func parseContextPath(path string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid context path %q: %w", path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
