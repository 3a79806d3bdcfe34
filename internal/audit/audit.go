// Package audit logs one structured line per relief command invocation: the
// command name, the config sources it loaded, and the operational
// environment. Secret values are reduced to "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditEntry is one env var included in the audit line.
type auditEntry struct {
	key string
	// secret redacts the value to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars in every audit line, grouped by
// the component that reads them.
var auditKeys = []auditEntry{
	// chat model
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},

	// embeddings
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_ENDPOINT", false},
	{"RELIEF_EMBED_CACHE", false},

	// vector index
	{"VECTOR_BACKEND", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_PRODUCT_COLLECTION", false},
	{"QDRANT_ORDER_COLLECTION", false},
	{"QDRANT_API_KEY", true},

	// sync
	{"RELIEF_SYNC_MODE", false},
	{"RELIEF_RECONCILE_INTERVAL", false},

	// server and store
	{"RELIEF_API_KEY", true},
	{"RELIEF_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretKeys indexes the secret entries of auditKeys.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits the audit line for command. configPath and envFile
// are the YAML and .env files that were loaded, or "".
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath, envFile string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+3)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.String("env_file", sanitiseConfigPath(envFile)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set"/"unset" for secret keys and the value (or
// "unset") otherwise.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
