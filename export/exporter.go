// Package export turns the users and grades of a course into rows of one of the
// configured export formats.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/gosimple/slug"
	"github.com/hashicorp/go-uuid"
	"go.uber.org/multierr"

	ge "github.com/mimiro-io/grade-export"
	"github.com/mimiro-io/grade-export/encoder"
)

// Source is everything an export reads from the gradebook.
type Source interface {
	ge.RowSource
	Course(ctx context.Context, courseID int64) (*ge.Course, error)
	GradeItems(ctx context.Context, courseID int64) (*ge.GradeItems, error)
	CustomProfileFields(ctx context.Context, shortNames []string) ([]*ge.FieldDescriptor, error)
}

type Exporter struct {
	source    Source
	def       *ge.ExportDefinition
	gradebook *ge.GradebookConfig
	logger    ge.Logger
	metrics   ge.Metrics
	clock     clock.Clock
}

func NewExporter(source Source, def *ge.ExportDefinition, gradebook *ge.GradebookConfig, logger ge.Logger, metrics ge.Metrics) *Exporter {
	if gradebook == nil {
		gradebook = &ge.GradebookConfig{}
	}
	return &Exporter{
		source:    source,
		def:       def,
		gradebook: gradebook,
		logger:    logger.With("export", def.Name),
		metrics:   metrics,
		clock:     clock.New(),
	}
}

func (e *Exporter) WithClock(c clock.Clock) *Exporter {
	e.clock = c
	return e
}

// FileName is the download name of an export of course, like "bio-grades.xlsx".
func (e *Exporter) FileName(course *ge.Course) string {
	return slug.Make(course.ShortName+" grades") + encoder.Extension(e.def.Format)
}

func (e *Exporter) ContentType() string {
	return encoder.ContentType(e.def.Format)
}

// Columns resolves the column plan of the export for the given items.
func (e *Exporter) Columns(ctx context.Context, items *ge.GradeItems) ([]encoder.Column, error) {
	l, err := e.layout(ctx, items)
	if err != nil {
		return nil, err
	}
	return l.columns, nil
}

func (e *Exporter) layout(ctx context.Context, items *ge.GradeItems) (*layout, error) {
	displayTypes, err := ParseDisplayTypes(e.def.DisplayTypes)
	if err != nil {
		return nil, err
	}

	var customFields []*ge.FieldDescriptor
	if e.def.IncludeCustomFields && len(e.gradebook.CustomProfileFields) > 0 {
		customFields, err = e.source.CustomProfileFields(ctx, e.gradebook.CustomProfileFields)
		if err != nil {
			return nil, fmt.Errorf("loading custom profile fields: %w", err)
		}
	}
	fields := ResolveProfileFields(ProfileFieldOptionsFor(e.def, e.gradebook), customFields)
	return newLayout(fields, items, displayTypes, e.def), nil
}

// ExportCourse loads the course and all its grade items and exports them.
func (e *Exporter) ExportCourse(ctx context.Context, courseID, groupID int64, sink io.WriteCloser) (int, error) {
	course, err := e.source.Course(ctx, courseID)
	if err != nil {
		_ = sink.Close()
		return 0, err
	}
	items, err := e.source.GradeItems(ctx, courseID)
	if err != nil {
		_ = sink.Close()
		return 0, fmt.Errorf("loading grade items of course %d: %w", courseID, err)
	}
	return e.Export(ctx, course, items, groupID, sink)
}

// Export writes one row per user of the course, or of one group when groupID is not 0,
// and returns the number of rows. The sink is always closed. Nothing is written to the
// sink when the course grades need to be recalculated.
func (e *Exporter) Export(ctx context.Context, course *ge.Course, items *ge.GradeItems, groupID int64, sink io.WriteCloser) (rows int, err error) {
	runID, err := uuid.GenerateUUID()
	if err != nil {
		_ = sink.Close()
		return 0, err
	}
	logger := e.logger.With("run", runID)
	started := e.clock.Now()
	tags := []string{"export:" + e.def.Name, "format:" + e.def.Format}

	l, err := e.layout(ctx, items)
	if err != nil {
		_ = sink.Close()
		return 0, err
	}
	if groupID != 0 {
		for _, key := range e.def.Sort {
			if key.Field == ge.GroupNameField {
				_ = sink.Close()
				return 0, ge.Errorf(ge.LayerErrorBadParameter,
					"export %s sorts by group name and cannot be limited to group %d", e.def.Name, groupID)
			}
		}
	}

	sort1, sort2 := e.def.SortKeys()
	it := ge.NewGradedUserIterator(e.source, course, items, groupID, sort1, sort2, logger, e.metrics)
	it.RequireActiveEnrolment(e.def.OnlyActive)
	it.AllowUserCustomFields(e.def.IncludeCustomFields)
	defer func() {
		err = multierr.Append(err, it.Close())
	}()

	ok, err := it.Init(ctx)
	if err != nil {
		_ = sink.Close()
		return 0, err
	}
	if !ok {
		_ = sink.Close()
		if merr := e.metrics.Incr("export.stale", tags, 1); merr != nil {
			logger.Warn("Error with metrics", "error", merr.Error())
		}
		return 0, ge.Errorf(ge.LayerErrorStaleGrades, "grades of course %d need to be recalculated before exporting", course.ID)
	}

	counter := encoder.NewCountingWriter(sink)
	writer, err := encoder.NewItemWriter(e.def.Format, e.def.SourceConfig, l.columns, logger, counter)
	if err != nil {
		_ = sink.Close()
		return 0, err
	}

	exportedAt := e.clock.Now().Unix()
	for {
		if err := ctx.Err(); err != nil {
			return rows, multierr.Append(err, writer.Close())
		}
		bundle, err := it.NextUser()
		if err != nil {
			return rows, multierr.Append(err, writer.Close())
		}
		if bundle == nil {
			break
		}
		if err := writer.Write(l.row(bundle, exportedAt)); err != nil {
			return rows, multierr.Append(fmt.Errorf("writing row %d: %w", rows+1, err), writer.Close())
		}
		rows++
	}
	if err := writer.Close(); err != nil {
		return rows, err
	}

	elapsed := e.clock.Since(started)
	var merr error
	if lerr := e.metrics.Gauge("export.rows", float64(rows), tags, 1); lerr != nil {
		merr = lerr
	}
	if lerr := e.metrics.Timing("export.duration", elapsed, tags, 1); lerr != nil {
		merr = lerr
	}
	if merr != nil {
		logger.Warn("Error with metrics", "error", merr.Error())
	}
	logger.Info("export finished",
		"course", course.ID,
		"group", groupID,
		"rows", rows,
		"size", humanize.Bytes(uint64(counter.Count())),
		"elapsed", elapsed.Round(time.Millisecond).String())
	return rows, nil
}
