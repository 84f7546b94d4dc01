package database

import (
	"fmt"
	"os"
	"strings"

	"github.com/tgwarmup/tgwarmup/internal/config"
)

// ResolveURL returns the DSN for the configured driver.
//
// For sqlite3 the configured URL is used as is. For postgres, DATABASE_URL
// wins; otherwise a Cloud SQL unix-socket DSN is built from
// INSTANCE_CONNECTION_NAME, DB_USER, DB_PASSWORD and DB_NAME.
func ResolveURL(cfg config.DatabaseConfig) (string, error) {
	if cfg.Driver == string(DialectSQLite) {
		if cfg.URL == "" {
			return "", fmt.Errorf("sqlite3 requires DATABASE_URL")
		}
		return cfg.URL, nil
	}

	if cfg.URL != "" {
		return cfg.URL, nil
	}

	instanceConnectionName := os.Getenv("INSTANCE_CONNECTION_NAME")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	if instanceConnectionName == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}
	if dbUser == "" || dbName == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	// Cloud Run mounts Cloud SQL instances at /cloudsql/[INSTANCE_CONNECTION_NAME]
	socketPath := fmt.Sprintf("/cloudsql/%s", instanceConnectionName)
	if dbPassword != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, dbUser, dbPassword, dbName), nil
	}
	// IAM authentication needs no password
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable",
		socketPath, dbUser, dbName), nil
}

// ConnectionInfo describes the connection for logging without secrets.
func ConnectionInfo(driver, url string) map[string]string {
	info := map[string]string{"driver": driver}
	switch {
	case driver == string(DialectSQLite):
		info["connection_type"] = "file"
		info["path"] = strings.SplitN(strings.TrimPrefix(url, "file:"), "?", 2)[0]
	case strings.HasPrefix(url, "host=/cloudsql/"):
		info["connection_type"] = "cloud_sql"
		info["dsn"] = redactPassword(url)
	default:
		info["connection_type"] = "direct"
		info["dsn"] = redactPassword(url)
	}
	return info
}

// redactPassword removes the password from a connection string for safe logging.
func redactPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgresql://") || strings.HasPrefix(connStr, "postgres://") {
		parts := strings.SplitN(connStr, "@", 2)
		if len(parts) == 2 {
			userParts := strings.Split(parts[0], ":")
			if len(userParts) >= 3 {
				return userParts[0] + ":" + userParts[1] + ":***@" + parts[1]
			}
		}
		return connStr
	}

	fields := strings.Fields(connStr)
	for i, field := range fields {
		if strings.HasPrefix(field, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
