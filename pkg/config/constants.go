package config

// EnvPrefix is the envconfig prefix shared by every entrypoint.
const EnvPrefix = "zhongdao"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags (tests, error text).
const (
	EnvAppEnv   = "ZHONGDAO_APP_ENV"
	EnvPort     = "ZHONGDAO_APP_PORT"
	EnvDBDSN    = "ZHONGDAO_DB_DSN"
	EnvDBHost   = "ZHONGDAO_DB_HOST"
	EnvDBUser   = "ZHONGDAO_DB_USER"
	EnvDBName   = "ZHONGDAO_DB_NAME"
	EnvRedisURL = "ZHONGDAO_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
