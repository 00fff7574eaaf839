package instance

import "os"

// GetID identifies the running process in logs and lock ownership.
// DMSHUB_INSTANCE_ID wins over the container hostname.
func GetID() string {
	if id := os.Getenv("DMSHUB_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
