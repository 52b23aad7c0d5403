// Package config handles configuration loading for knowledge-bridge.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the KB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/knowledge-bridge/config.yaml
//  3. ~/.config/knowledge-bridge/config.yaml
//
// A missing file is fine; the bridge then runs from defaults plus KB_*
// environment variables, which is how most MCP hosts launch it.
// Files ending in .toml are decoded as TOML.
//
// # Environment Variable Expansion
//
//	api:
//	  credential: "${KNOWLEDGE_API_KEY}"
//
// # Example
//
//	api:
//	  base_url: "https://notes.example.com"
//	  credential: "${KNOWLEDGE_API_KEY}"   # role-project-secret
//	  project_id: ""                       # overrides the credential's project
//	  timeout: "5s"
//	  retries: 3
//	  retry_delay: "1s"
//
//	webhook:
//	  enabled: true
//	  host: "127.0.0.1"
//	  port: 0            # 0 picks an ephemeral port
//	  path: "/webhook"
//	  secret: "${KB_WEBHOOK_SECRET}"
//	  events: [created, updated, deleted]
//	  journal_path: "~/.local/share/knowledge-bridge/events.db"
//	  reregister_schedule: "@every 5m"
//
//	mcp:
//	  transport: "stdio" # stdio, http
//	  http_addr: "127.0.0.1:8765"
//
//	logging:
//	  enabled: true
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//
// Durations accept Go syntax ("5s", "1m30s") or a bare millisecond count.
package config
