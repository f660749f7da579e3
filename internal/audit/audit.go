// Package audit logs a structured record of each CLI command invocation:
// the command name, the resolved config file, and the operational environment.
// Secret values are reduced to presence/absence before they reach a log line.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditedVar names an environment variable included in the command-start
// record. Secret variables are logged as "set"/"unset" only.
type auditedVar struct {
	key    string
	secret bool
}

// auditedVars is the ordered environment surface of the application. One
// table drives both the command-start record and SanitiseKey, so a variable
// cannot be audited under one redaction rule and logged under another.
var auditedVars = []auditedVar{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"BEDROCK_MODEL_ID", false},
	{"AWS_SECRET_ACCESS_KEY", true},
	{"AWS_SESSION_TOKEN", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_DIMENSIONS", false},
	{"NEO4J_URI", false},
	{"NEO4J_USERNAME", false},
	{"NEO4J_PASSWORD", true},
	{"NEO4J_DATABASE", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"GRAPHRAG_API_KEY", true},
	{"GRAPHRAG_HISTORY_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretKeys is derived from auditedVars for O(1) lookup in SanitiseKey.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool, len(auditedVars))
	for _, v := range auditedVars {
		if v.secret {
			m[v.key] = true
		}
	}
	return m
}()

// LogCommandStart emits one audit record as a command begins: command name,
// config file source, and every audited environment variable.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedVars)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, v := range auditedVars {
		attrs = append(attrs, slog.String(v.key, SanitiseKey(v.key, os.Getenv(v.key))))
	}
	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env var value for logging: secret keys become
// "set"/"unset", everything else passes through ("unset" when empty).
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		if value != "" {
			return "set"
		}
		return "unset"
	}
	if value == "" {
		return "unset"
	}
	return value
}

// sanitiseConfigPath collapses the home directory prefix and maps an empty
// path to "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
