package db

import "github.com/smallbiznis/dormhub/internal/config"

// IsSQLite reports whether the configured backend is the embedded sqlite file.
func IsSQLite(cfg config.Config) bool {
	return cfg.DBType == "sqlite"
}
