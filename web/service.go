// Package web serves grade exports over http.
package web

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	ge "github.com/mimiro-io/grade-export"
	"github.com/mimiro-io/grade-export/encoder"
	"github.com/mimiro-io/grade-export/export"
)

const defaultPort = "8080"

type Service struct {
	source export.Source
	core   *ge.CoreService
	e      *echo.Echo

	mu     sync.RWMutex
	config *ge.Config
}

func NewService(core *ge.CoreService, source export.Source) (*Service, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(NewMiddleware(core)...)

	s := &Service{source: source, core: core, e: e, config: core.Config}

	e.GET("/health", s.health)
	e.GET("/exports", s.listExports)
	e.GET("/exports/:export/courses/:course", s.exportCourse)

	return s, nil
}

func (s *Service) Start() error {
	port := defaultPort
	if lc := s.currentConfig().LayerServiceConfig; lc != nil && lc.Port != "" {
		port = lc.Port
	}
	s.core.Logger.Info(fmt.Sprintf("Starting Http server on :%s", port))
	go func() {
		if err := s.e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			s.core.Logger.Error("http server stopped", "error", err.Error())
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// UpdateConfiguration swaps the export definitions and gradebook settings used by
// requests that start after the call.
func (s *Service) UpdateConfiguration(config *ge.Config) ge.LayerError {
	if config == nil {
		return ge.Errorf(ge.LayerErrorBadParameter, "missing config")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return nil
}

func (s *Service) currentConfig() *ge.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Service) health(c echo.Context) error {
	return c.String(http.StatusOK, "UP")
}

func (s *Service) listExports(c echo.Context) error {
	names := make([]string, 0)
	for _, def := range s.currentConfig().ExportDefinitions {
		names = append(names, def.Name)
	}
	return c.JSON(http.StatusOK, names)
}

func (s *Service) exportCourse(c echo.Context) error {
	name, _ := url.PathUnescape(c.Param("export"))
	conf := s.currentConfig()
	def := conf.GetExportDefinition(name)
	if def == nil {
		s.core.Logger.Warn(fmt.Sprintf("export definition not found: %s", name))
		return echo.NewHTTPError(http.StatusNotFound, "export definition not found")
	}

	courseID, err := strconv.ParseInt(c.Param("course"), 10, 64)
	if err != nil || courseID <= 0 {
		return ge.Errorf(ge.LayerErrorBadParameter, "invalid course id %q", c.Param("course")).ToHTTPError()
	}
	var groupID int64
	if group := c.QueryParam("group"); group != "" {
		groupID, err = strconv.ParseInt(group, 10, 64)
		if err != nil || groupID < 0 {
			return ge.Errorf(ge.LayerErrorBadParameter, "invalid group id %q", group).ToHTTPError()
		}
	}

	ctx := c.Request().Context()
	course, err := s.source.Course(ctx, courseID)
	if err != nil {
		return ge.ToHTTPError(err)
	}
	items, err := s.source.GradeItems(ctx, courseID)
	if err != nil {
		return ge.ToHTTPError(err)
	}

	exporter := export.NewExporter(s.source, def, conf.GradebookConfig, s.core.Logger, s.core.Metrics)
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, exporter.ContentType())
	res.Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": exporter.FileName(course)}))

	_, err = exporter.Export(ctx, course, items, groupID, encoder.NopCloser(res))
	if err != nil {
		if res.Committed {
			// the status is already sent, all that is left is to cut the download short
			s.core.Logger.Error("export failed while streaming",
				"export", def.Name, "course", strconv.FormatInt(courseID, 10), "error", err.Error())
			return nil
		}
		res.Header().Del(echo.HeaderContentDisposition)
		res.Header().Del(echo.HeaderContentType)
		return ge.ToHTTPError(err)
	}
	return nil
}
