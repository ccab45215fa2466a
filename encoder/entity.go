package encoder

import (
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	egdm "github.com/mimiro-io/entity-graph-data-model"

	ge "github.com/mimiro-io/grade-export"
)

const defaultBaseURI = "http://data.mimiro.io/grades/"

type EntityPropertyMapping struct {
	Property       string
	EntityProperty string
	IsIdentity     bool
}

type ItemToEntityMapper interface {
	ItemToEntity(item Item) *egdm.Entity
}

type GenericEntityMapper struct {
	Mappings []*EntityPropertyMapping
	idPrefix string
}

// NewGenericEntityMapper maps every column to a property below baseURI. The column named
// by idColumn, if any, also provides the entity id.
func NewGenericEntityMapper(baseURI string, columns []Column, idColumn string) *GenericEntityMapper {
	mapper := &GenericEntityMapper{idPrefix: baseURI + "user/"}
	for _, col := range columns {
		if col.Key == idColumn {
			mapper.Mappings = append(mapper.Mappings, &EntityPropertyMapping{Property: col.Key, IsIdentity: true})
		}
		mapper.Mappings = append(mapper.Mappings, &EntityPropertyMapping{
			Property:       col.Key,
			EntityProperty: baseURI + SanitizeKey(col.Key),
		})
	}
	return mapper
}

func (em *GenericEntityMapper) ItemToEntity(item Item) *egdm.Entity {
	entity := egdm.NewEntity()
	for _, mapping := range em.Mappings {
		sourcePropertyValue := item.GetValue(mapping.Property)
		if sourcePropertyValue == nil {
			continue
		}

		if mapping.IsIdentity {
			if id := stringValue(sourcePropertyValue); id != "" {
				entity.ID = em.idPrefix + url.PathEscape(id)
			}
		} else {
			entity.Properties[mapping.EntityProperty] = sourcePropertyValue
		}
	}
	return entity
}

/******************************************************************************/

// EntityItemWriter writes rows as an entity graph json array: a context object followed
// by one entity per row. Source config keys: base_uri and id_column. Rows without an id
// are numbered.
type EntityItemWriter struct {
	data    io.WriteCloser
	mapper  ItemToEntityMapper
	baseURI string
	count   int
}

func NewEntityItemWriter(sourceConfig map[string]any, columns []Column, data io.WriteCloser) (*EntityItemWriter, error) {
	baseURI := defaultBaseURI
	if v, ok := sourceConfig["base_uri"].(string); ok && v != "" {
		baseURI = v
		if !strings.HasSuffix(baseURI, "/") && !strings.HasSuffix(baseURI, "#") {
			baseURI += "/"
		}
	}
	if _, err := url.ParseRequestURI(baseURI); err != nil {
		return nil, ge.Errorf(ge.LayerErrorBadParameter, "invalid base_uri %q", baseURI)
	}
	idColumn, _ := sourceConfig["id_column"].(string)

	writer := &EntityItemWriter{
		data:    data,
		mapper:  NewGenericEntityMapper(baseURI, columns, idColumn),
		baseURI: baseURI,
	}

	nsContext := map[string]any{
		"id": "@context",
		"namespaces": map[string]string{
			"ns0": baseURI,
			"ns1": baseURI + "user/",
		},
	}
	b, err := json.Marshal(nsContext)
	if err != nil {
		return nil, err
	}
	if _, err := data.Write(append([]byte("["), b...)); err != nil {
		return nil, err
	}
	return writer, nil
}

func (e *EntityItemWriter) Write(item Item) error {
	e.count++
	entity := e.mapper.ItemToEntity(item)
	if entity.ID == "" {
		entity.ID = e.baseURI + "user/" + strconv.Itoa(e.count)
	}
	b, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	if _, err := e.data.Write([]byte(",\n")); err != nil {
		return err
	}
	_, err = e.data.Write(b)
	return err
}

func (e *EntityItemWriter) Close() error {
	if _, err := e.data.Write([]byte("]")); err != nil {
		_ = e.data.Close()
		return err
	}
	return e.data.Close()
}
