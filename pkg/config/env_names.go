package config

// EnvPrefix scopes every environment variable read by Load.
const EnvPrefix = "MILLTRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "MILLTRACK_DB_DSN"
	EnvDBHost = "MILLTRACK_DB_HOST"
	EnvDBUser = "MILLTRACK_DB_USER"
	EnvDBName = "MILLTRACK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
