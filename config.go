package grade_export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

type Config struct {
	ConfigPath         string              // set by service runner
	LayerServiceConfig *LayerServiceConfig `json:"layer_config"`
	DatabaseConfig     *DatabaseConfig     `json:"database_config"`
	GradebookConfig    *GradebookConfig    `json:"gradebook_config"`
	ExportDefinitions  []*ExportDefinition `json:"export_definitions"`
}

type LayerServiceConfig struct {
	ServiceName           string         `json:"service_name"`
	Port                  string         `json:"port"`
	ConfigRefreshInterval string         `json:"config_refresh_interval"`
	LogLevel              string         `json:"log_level"`
	LogFormat             string         `json:"log_format"`
	StatsdEnabled         bool           `json:"statsd_enabled"`
	StatsdAgentAddress    string         `json:"statsd_agent_address"`
	CorsOrigins           []string       `json:"cors_origins"`
	Custom                map[string]any `json:"custom"`
}

type DatabaseConfig struct {
	Driver         string `json:"driver"` // postgres, mysql or sqlite
	DSN            string `json:"dsn"`
	TablePrefix    string `json:"table_prefix"`
	ConnectRetries int    `json:"connect_retries"`
}

// GradebookConfig holds the site settings the query builder and the profile field
// resolution depend on.
type GradebookConfig struct {
	GradebookRoles      []int64  `json:"gradebook_roles"`
	HiddenUserFields    []string `json:"hidden_user_fields"`
	CustomProfileFields []string `json:"custom_profile_fields"`
}

type ExportDefinition struct {
	Name                 string         `json:"name"`
	Format               string         `json:"format"`
	SourceConfig         map[string]any `json:"source_config"`
	ProfileFields        []string       `json:"profile_fields"`
	IncludeCustomFields  bool           `json:"include_custom_fields"`
	ShowHiddenUserFields bool           `json:"show_hidden_user_fields"`
	DisplayTypes         []string       `json:"display_types"`
	ExportFeedback       bool           `json:"export_feedback"`
	OnlyActive           bool           `json:"only_active"`
	DecimalPoints        *int           `json:"decimal_points"`
	Sort                 []SortKey      `json:"sort"`
}

// SortKeys returns the two configured sort keys, the defaults are group name then first name.
func (d *ExportDefinition) SortKeys() (SortKey, SortKey) {
	if len(d.Sort) == 0 {
		return SortKey{Field: GroupNameField, Direction: SortAscending}, SortKey{Field: "u.firstname", Direction: SortAscending}
	}
	if len(d.Sort) == 1 {
		return d.Sort[0], SortKey{}
	}
	return d.Sort[0], d.Sort[1]
}

/******************************************************************************/

func (c *Config) GetExportDefinition(name string) *ExportDefinition {
	for _, def := range c.ExportDefinitions {
		if def.Name == name {
			return def
		}
	}
	return nil
}

func (c *Config) equals(conf *Config) bool {
	return reflect.DeepEqual(c, conf)
}

func newConfig() *Config {
	return &Config{}
}

func readConfig(data io.Reader) (*Config, error) {
	config := newConfig()
	s, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(s, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfig reads and merges every .json file in the configPath folder, then applies
// environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	c := newConfig()
	c.ConfigPath = configPath

	files, err := os.ReadDir(configPath)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		config, err := readConfigFile(filepath.Join(configPath, file.Name()))
		if err != nil {
			return nil, err
		}
		addConfig(c, config)
	}

	// Initialize any missing config components as some values may get set later
	// and the config is compared to see if it has changed, so need to make sure they exist
	if c.LayerServiceConfig == nil {
		c.LayerServiceConfig = &LayerServiceConfig{}
	}

	if c.DatabaseConfig == nil {
		c.DatabaseConfig = &DatabaseConfig{}
	}

	if c.GradebookConfig == nil {
		c.GradebookConfig = &GradebookConfig{}
	}

	if c.ExportDefinitions == nil {
		c.ExportDefinitions = make([]*ExportDefinition, 0)
	}

	addEnvOverrides(c)
	return c, nil
}

func readConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readConfig(f)
}

func addEnvOverrides(c *Config) {
	val, found := os.LookupEnv("PORT")
	if found {
		c.LayerServiceConfig.Port = val
	}

	val, found = os.LookupEnv("CONFIG_REFRESH_INTERVAL")
	if found {
		c.LayerServiceConfig.ConfigRefreshInterval = val
	}

	val, found = os.LookupEnv("SERVICE_NAME")
	if found {
		c.LayerServiceConfig.ServiceName = val
	}

	val, found = os.LookupEnv("STATSD_ENABLED")
	if found {
		c.LayerServiceConfig.StatsdEnabled = val == "true"
	}

	val, found = os.LookupEnv("STATSD_AGENT_ADDRESS")
	if found {
		c.LayerServiceConfig.StatsdAgentAddress = val
	}

	val, found = os.LookupEnv("LOG_LEVEL")
	if found {
		c.LayerServiceConfig.LogLevel = val
	}

	val, found = os.LookupEnv("LOG_FORMAT")
	if found {
		c.LayerServiceConfig.LogFormat = val
	}

	val, found = os.LookupEnv("DB_DRIVER")
	if found {
		c.DatabaseConfig.Driver = val
	}

	val, found = os.LookupEnv("DB_DSN")
	if found {
		c.DatabaseConfig.DSN = val
	}

	val, found = os.LookupEnv("DB_TABLE_PREFIX")
	if found {
		c.DatabaseConfig.TablePrefix = val
	}

	val, found = os.LookupEnv("DB_CONNECT_RETRIES")
	if found {
		if n, err := strconv.Atoi(val); err == nil {
			c.DatabaseConfig.ConnectRetries = n
		}
	}
}

func addConfig(mainConfig *Config, partialConfig *Config) {
	// these sections can only be defined once, any repeats replace them
	if partialConfig.LayerServiceConfig != nil {
		mainConfig.LayerServiceConfig = partialConfig.LayerServiceConfig
	}

	if partialConfig.DatabaseConfig != nil {
		mainConfig.DatabaseConfig = partialConfig.DatabaseConfig
	}

	if partialConfig.GradebookConfig != nil {
		mainConfig.GradebookConfig = partialConfig.GradebookConfig
	}

	// initialise if needed
	if mainConfig.ExportDefinitions == nil {
		mainConfig.ExportDefinitions = make([]*ExportDefinition, 0)
	}

	for _, def := range partialConfig.ExportDefinitions {
		var exists bool
		for i, existingDef := range mainConfig.ExportDefinitions {
			if existingDef.Name == def.Name {
				exists = true
				mainConfig.ExportDefinitions[i] = def
				break
			}
		}
		if !exists {
			mainConfig.ExportDefinitions = append(mainConfig.ExportDefinitions, def)
		}
	}
}
