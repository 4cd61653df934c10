package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"exbitrage/internal/core"
)

const (
	BitkubEnvPrefix = "BITKUB"
	SatangEnvPrefix = "SATANG"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// CredentialsFromEnv reads <PREFIX>_USER_ID, <PREFIX>_API_KEY and <PREFIX>_API_SECRET.
func CredentialsFromEnv(prefix string) core.Credentials {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	return core.Credentials{
		UserID: strings.TrimSpace(os.Getenv(prefix + "_USER_ID")),
		Key:    strings.TrimSpace(os.Getenv(prefix + "_API_KEY")),
		Secret: strings.TrimSpace(os.Getenv(prefix + "_API_SECRET")),
	}
}
