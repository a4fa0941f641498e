package env

import (
	"os"
)

const (
	APIBaseURL    = "SUPPORT_API_URL"
	SocketURL     = "SUPPORT_WS_URL"
	SessionFile   = "SUPPORT_SESSION_FILE"
	ListenAddr    = "SUPPORT_LISTEN_ADDR"
	AdminEmail    = "SUPPORT_ADMIN_EMAIL"
	AdminPassword = "SUPPORT_ADMIN_PASSWORD"
	AdminSecret   = "SUPPORT_ADMIN_SECRET"
	ChatRedisURL  = "CHAT_REDIS_URL"
	ChatRedisPass = "CHAT_REDIS_PASS"
	DataPath      = "SUPPORT_DATA_PATH"
)

// Defaults point every binary at a local stub server so the consoles work
// out of the box. The server stays the source of truth for everything else.
const (
	DefaultAPIBaseURL = "http://localhost:5000"
	DefaultSocketURL  = "ws://localhost:5000/socket"
	DefaultListenAddr = ":5000"
)

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
