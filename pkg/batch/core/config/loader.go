package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig builds a Config from defaults, the embedded YAML and the environment, in that order.
// ${VAR} references inside the YAML are expanded before decoding.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()
	expanded := os.ExpandEnv(string(embeddedConfig))
	// yaml.v3 decodes onto the existing struct, so keys absent from the file keep their defaults.
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config, applies the logging settings
// and validates the configured exception names.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetEncoding(cfg.LoanCOB.System.Logging.Encoding)
	logger.SetLogLevel(cfg.LoanCOB.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.LoanCOB.System.Logging.Level)

	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

// LoadConfig loads configuration outside of Fx, e.g. for CLI subcommands.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// Validate checks numeric bounds and that every configured exception name is registered.
func Validate(cfg *Config) error {
	b := cfg.LoanCOB.Batch
	if b.PartitionSize <= 0 {
		return fmt.Errorf("batch.partition_size must be positive, got %d", b.PartitionSize)
	}
	if b.ChunkSize <= 0 {
		return fmt.Errorf("batch.chunk_size must be positive, got %d", b.ChunkSize)
	}
	if b.ReaderThreads <= 0 {
		return fmt.Errorf("batch.reader_threads must be positive, got %d", b.ReaderThreads)
	}
	if b.GridSize < 0 {
		return fmt.Errorf("batch.grid_size must not be negative, got %d", b.GridSize)
	}
	switch b.JobRepository {
	case "", JobRepositoryInMemory, JobRepositorySQL:
	default:
		return fmt.Errorf("batch.job_repository must be '%s' or '%s', got '%s'", JobRepositoryInMemory, JobRepositorySQL, b.JobRepository)
	}
	if err := checkExceptionClasses(b.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		return err
	}
	return checkExceptionClasses(b.ItemSkip.SkippableExceptions, "ItemSkip")
}

func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class '%s'; ensure it is registered", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv walks val using yaml tags as name segments, e.g. LOANCOB_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
				loadAdaptorMapFromEnv(field, envVarName+"_")
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadAdaptorMapFromEnv applies LOANCOB_DATABASE_<NAME>_<KEY>=value onto the raw datasource map.
// Datasource names must not contain underscores.
func loadAdaptorMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	m := mapField.Interface().(map[string]interface{})
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyParts := strings.SplitN(parts[0], "_", 2)
		if len(keyParts) != 2 {
			continue
		}
		name := strings.ToLower(keyParts[0])
		key := strings.ToLower(keyParts[1])
		entry, ok := m[name].(map[string]interface{})
		if !ok {
			entry = make(map[string]interface{})
			m[name] = entry
		}
		entry[key] = parts[1]
	}
}

// setField converts value into the field's kind. Slices are comma separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
