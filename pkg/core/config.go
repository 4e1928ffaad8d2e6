package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultModelsConfig is the models configuration read when no path is given.
const DefaultModelsConfig = "configs/sentence_transformers.json"

// DefaultOutputDir is the root under which per-model result folders are created.
const DefaultOutputDir = "results"

// DefaultDataDir is the root holding prepared benchmark datasets.
const DefaultDataDir = "data"

// Args holds the startup parameters of an evaluation run.
type Args struct {
	// ModelsConfig is the path to the models configuration file.
	ModelsConfig string

	// OutputDir is the results root (default "results").
	OutputDir string

	// DataDir is the prepared datasets root (default "data").
	DataDir string

	// Resume enables the completed-pairs ledger.
	Resume bool
}

// NewArgs returns Args with every default applied.
func NewArgs() *Args {
	return &Args{
		ModelsConfig: DefaultModelsConfig,
		OutputDir:    DefaultOutputDir,
		DataDir:      DefaultDataDir,
	}
}

// LoadModelInfos reads the models configuration named by a.ModelsConfig.
func (a *Args) LoadModelInfos() ([]ModelInfo, error) {
	path := a.ModelsConfig
	if path == "" {
		path = DefaultModelsConfig
	}
	return LoadModelInfos(path)
}

// ModelOutputDir returns the results folder of a model.
//
// The path depends only on the model short name, so repeated runs of the same
// model overwrite the same folder.
func (a *Args) ModelOutputDir(info ModelInfo) string {
	root := a.OutputDir
	if root == "" {
		root = DefaultOutputDir
	}
	return filepath.Join(root, info.ShortName())
}

// LoadModelInfos decodes a sequence of model records from a JSON or YAML file.
//
// The format is chosen by extension (.yaml/.yml for YAML, anything else JSON).
// Unknown fields, unknown model types and records without a model name fail
// at parse time.
//
// Example:
//
//	infos, err := core.LoadModelInfos("configs/sentence_transformers.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadModelInfos(path string) ([]ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEvalError("LoadModelInfos", err)
	}

	var infos []ModelInfo
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&infos); err != nil {
			return nil, NewEvalError("LoadModelInfos", fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err))
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&infos); err != nil {
			return nil, NewEvalError("LoadModelInfos", fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err))
		}
	}

	for i, info := range infos {
		if err := info.Validate(); err != nil {
			return nil, NewEvalError("LoadModelInfos", fmt.Errorf("record %d: %w", i, err))
		}
	}
	return infos, nil
}

// LedgerConfig selects the completed-pairs ledger backend.
//
// Supported providers: sqlite, postgres, mysql
type LedgerConfig struct {
	// Provider is the ledger backend name.
	Provider string

	// Config contains provider-specific settings.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	Config map[string]interface{}
}

// Env holds settings sourced from the process environment.
type Env struct {
	// OllamaBaseURL is the default endpoint for ST models.
	OllamaBaseURL string

	// TEIBaseURL is the default endpoint for FE and T models.
	TEIBaseURL string

	// OpenAIBaseURL is the default endpoint for NV models.
	OpenAIBaseURL string

	lookup func(string) string
}

// Getenv resolves a variable captured by LoadEnv, falling back to os.Getenv.
func (e *Env) Getenv(key string) string {
	if e != nil && e.lookup != nil {
		return e.lookup(key)
	}
	return os.Getenv(key)
}

// LoadEnv loads settings from the environment.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Captures the variables into an Env
//
// Supported environment variables:
//   - OLLAMA_BASE_URL, TEI_BASE_URL, OPENAI_BASE_URL
//   - API keys named by each model's api_key_env
//   - ledger settings, read by Env.LedgerConfig
func LoadEnv() (*Env, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	return envFromLookup(os.Getenv), nil
}

// LoadEnvFile loads settings from a specific .env file.
func LoadEnvFile(envPath string) (*Env, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewEvalError("LoadEnvFile", fmt.Errorf("failed to load .env file: %w", err))
	}
	return envFromLookup(os.Getenv), nil
}

// EnvFromMap builds an Env from a fixed variable set without touching the
// process environment.
func EnvFromMap(vars map[string]string) *Env {
	return envFromLookup(func(key string) string { return vars[key] })
}

func envFromLookup(lookup func(string) string) *Env {
	e := &Env{lookup: lookup}
	e.OllamaBaseURL = e.get("OLLAMA_BASE_URL", "http://localhost:11434")
	e.TEIBaseURL = e.get("TEI_BASE_URL", "http://localhost:8080")
	e.OpenAIBaseURL = e.get("OPENAI_BASE_URL", "https://integrate.api.nvidia.com/v1")
	return e
}

func (e *Env) get(key, defaultValue string) string {
	if value := e.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// LedgerConfig parses the completed-pairs ledger settings.
//
// It is only called when a ledger is opened, so a run without --resume never
// fails on ledger variables.
//
// Supported environment variables:
//   - LEDGER_PROVIDER (sqlite, postgres, mysql; default sqlite)
//   - SQLITE_PATH, LEDGER_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
func (e *Env) LedgerConfig() (LedgerConfig, error) {
	table := e.get("LEDGER_TABLE", "completed_pairs")
	provider := e.get("LEDGER_PROVIDER", "sqlite")

	var config map[string]interface{}
	switch provider {
	case "sqlite":
		config = map[string]interface{}{
			"db_path":    e.get("SQLITE_PATH", "./plmteb.db"),
			"table_name": table,
		}
	case "postgres":
		port, err := strconv.Atoi(e.get("POSTGRES_PORT", "5432"))
		if err != nil {
			return LedgerConfig{}, NewEvalError("LedgerConfig", fmt.Errorf("%w: POSTGRES_PORT: %v", ErrInvalidConfig, err))
		}
		config = map[string]interface{}{
			"host":       e.get("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       e.get("POSTGRES_USER", "postgres"),
			"password":   e.Getenv("POSTGRES_PASSWORD"),
			"db_name":    e.get("POSTGRES_DATABASE", "plmteb"),
			"table_name": table,
			"ssl_mode":   e.get("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, err := strconv.Atoi(e.get("MYSQL_PORT", "3306"))
		if err != nil {
			return LedgerConfig{}, NewEvalError("LedgerConfig", fmt.Errorf("%w: MYSQL_PORT: %v", ErrInvalidConfig, err))
		}
		config = map[string]interface{}{
			"host":       e.get("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       e.get("MYSQL_USER", "root"),
			"password":   e.Getenv("MYSQL_PASSWORD"),
			"db_name":    e.get("MYSQL_DATABASE", "plmteb"),
			"table_name": table,
		}
	default:
		return LedgerConfig{}, NewEvalError("LedgerConfig", fmt.Errorf("%w: unknown ledger provider %q", ErrInvalidConfig, provider))
	}
	return LedgerConfig{Provider: provider, Config: config}, nil
}

// envSearchDepth bounds how many parent directories FindEnvFile visits.
const envSearchDepth = 5

// FindEnvFile looks for a .env file, preferring it over .env.example, in the
// working directory and its parents.
//
// The search ends at the project root (the first directory holding go.mod or
// .git) so a checkout never picks up settings from an enclosing workspace.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return findEnvFile(dir)
}

func findEnvFile(dir string) (string, bool) {
	for i := 0; i <= envSearchDepth; i++ {
		for _, name := range []string{".env", ".env.example"} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
		if isProjectRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func isProjectRoot(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
