package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time is used for durations derived from integer env vars
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Collaborator URLs default to their local
// development ports so the service starts without a full deployment.
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	JWTSecret        string        // secret used to verify JWTs issued upstream
	PolicyURL        string        // base URL of the policy-validation service
	CatalogURL       string        // base URL of the resource-catalog service
	UserServiceURL   string        // base URL of the user service
	SweepInterval    time.Duration // how often the no-show sweep runs
	SchedulerWorkers int           // workers draining completion fires
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"),
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		PolicyURL:        getenv("POLICY_SERVICE_URL", "http://localhost:3005"),
		CatalogURL:       getenv("CATALOG_SERVICE_URL", "http://localhost:3003"),
		UserServiceURL:   getenv("USER_SERVICE_URL", "http://localhost:3001"),
		SweepInterval:    time.Duration(intenv("NO_SHOW_SWEEP_MINUTES", 5)) * time.Minute,
		SchedulerWorkers: intenv("SCHEDULER_WORKERS", 4),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an optional variable or the default.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// intenv returns an optional integer variable or the default.  Invalid
// values fall back to the default rather than aborting startup.
func intenv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid int for %s: %q, using %d", key, v, def)
		return def
	}
	return n
}
