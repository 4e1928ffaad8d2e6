package evaluator

import (
	"context"
	"fmt"

	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/embedder"
	flagEmbedder "github.com/oceanbase/plmteb-go/pkg/embedder/flag"
	ollamaEmbedder "github.com/oceanbase/plmteb-go/pkg/embedder/ollama"
	openaiEmbedder "github.com/oceanbase/plmteb-go/pkg/embedder/openai"
	transformerEmbedder "github.com/oceanbase/plmteb-go/pkg/embedder/transformer"
	"github.com/oceanbase/plmteb-go/pkg/embedder/wordvec"
	"github.com/oceanbase/plmteb-go/pkg/ledger"
	mysqlLedger "github.com/oceanbase/plmteb-go/pkg/ledger/mysql"
	postgresLedger "github.com/oceanbase/plmteb-go/pkg/ledger/postgres"
	sqliteLedger "github.com/oceanbase/plmteb-go/pkg/ledger/sqlite"
)

// SentenceTransformerMaxSeqLength is the truncation length of ST models.
const SentenceTransformerMaxSeqLength = 1024

// BackendFactory builds the backend of one model.
type BackendFactory func(ctx context.Context, info core.ModelInfo, env *core.Env) (embedder.Provider, error)

// NewBackend constructs and loads the backend variant selected by info.ModelType.
func NewBackend(ctx context.Context, info core.ModelInfo, env *core.Env) (embedder.Provider, error) {
	if env == nil {
		env = &core.Env{}
	}
	backend, err := initBackend(info, env)
	if err != nil {
		return nil, core.NewEvalError("NewBackend", err)
	}

	if loader, ok := backend.(embedder.Loader); ok {
		if err := loader.Load(ctx); err != nil {
			_ = backend.Close()
			return nil, core.NewEvalError("NewBackend", fmt.Errorf("%w: %s: %w", core.ErrBackendLoad, info.ModelName, err))
		}
	}
	return backend, nil
}

// initBackend switches over every model type; a new type must be added here.
func initBackend(info core.ModelInfo, env *core.Env) (embedder.Provider, error) {
	wrap := func(p embedder.Provider, err error) (embedder.Provider, error) {
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrBackendLoad, info.ModelName, err)
		}
		return p, nil
	}
	apiKey := env.Getenv(info.EffectiveAPIKeyEnv())

	switch info.ModelType {
	case core.ModelTypeHostedAPI:
		return wrap(openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:    apiKey,
			Model:     info.ModelName,
			BaseURL:   firstNonEmpty(info.BaseURL, env.OpenAIBaseURL),
			Normalize: info.Normalize,
		}))
	case core.ModelTypeSentenceTransformer:
		client, err := ollamaEmbedder.NewClient(&ollamaEmbedder.Config{
			APIKey:  apiKey,
			Model:   info.ModelName,
			BaseURL: firstNonEmpty(info.BaseURL, env.OllamaBaseURL),
		})
		if err != nil {
			return wrap(nil, err)
		}
		client.SetMaxSeqLength(SentenceTransformerMaxSeqLength)
		client.Eval()
		if info.FP16 {
			client.Half()
		}
		return client, nil
	case core.ModelTypeTransformer:
		return wrap(transformerEmbedder.NewClient(&transformerEmbedder.Config{
			APIKey:    apiKey,
			Model:     info.ModelName,
			BaseURL:   firstNonEmpty(info.BaseURL, env.TEIBaseURL),
			Normalize: info.Normalize,
		}))
	case core.ModelTypeStaticVectors:
		return wrap(wordvec.NewModel(&wordvec.Config{
			Path:      firstNonEmpty(info.VectorsPath, info.ModelName),
			Normalize: info.Normalize,
		}))
	case core.ModelTypeFlagEmbedding:
		return wrap(flagEmbedder.NewClient(&flagEmbedder.Config{
			APIKey:    apiKey,
			Model:     info.ModelName,
			BaseURL:   firstNonEmpty(info.BaseURL, env.TEIBaseURL),
			Normalize: true,
		}))
	default:
		return nil, core.UnknownModelTypeError(string(info.ModelType))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OpenLedger opens the completed-pairs ledger named by cfg.Provider.
func OpenLedger(cfg core.LedgerConfig) (ledger.Ledger, error) {
	str := func(key string) string {
		s, _ := cfg.Config[key].(string)
		return s
	}
	port := func() int {
		p, _ := cfg.Config["port"].(int)
		return p
	}

	var (
		l   ledger.Ledger
		err error
	)
	switch cfg.Provider {
	case "sqlite":
		l, err = sqliteLedger.NewClient(&sqliteLedger.Config{
			DBPath:    str("db_path"),
			TableName: str("table_name"),
		})
	case "postgres":
		l, err = postgresLedger.NewClient(&postgresLedger.Config{
			Host:      str("host"),
			Port:      port(),
			User:      str("user"),
			Password:  str("password"),
			DBName:    str("db_name"),
			TableName: str("table_name"),
			SSLMode:   str("ssl_mode"),
		})
	case "mysql":
		l, err = mysqlLedger.NewClient(&mysqlLedger.Config{
			Host:      str("host"),
			Port:      port(),
			User:      str("user"),
			Password:  str("password"),
			DBName:    str("db_name"),
			TableName: str("table_name"),
		})
	default:
		return nil, core.NewEvalError("OpenLedger", fmt.Errorf("%w: unknown ledger provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
	if err != nil {
		return nil, core.NewEvalError("OpenLedger", err)
	}
	return l, nil
}
