package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv reads service account credentials from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (inline JSON or a file path). With neither
// set the client libraries fall back to application default credentials.
// A non-empty projectID is billed for quota.
func ClientOptionsFromEnv(projectID string) []option.ClientOption {
	var opts []option.ClientOption
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		opts = append(opts, option.WithQuotaProject(projectID))
	}
	return opts
}

// EmulatorHost returns STORAGE_EMULATOR_HOST without a trailing slash.
func EmulatorHost() string {
	return strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")
}
