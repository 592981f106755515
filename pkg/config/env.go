package config

const EnvPrefix = "THREADLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "THREADLINE_APP_ENV"
	EnvPort        = "THREADLINE_APP_PORT"
	EnvDBDSN       = "THREADLINE_DB_DSN"
	EnvDBHost      = "THREADLINE_DB_HOST"
	EnvDBUser      = "THREADLINE_DB_USER"
	EnvDBName      = "THREADLINE_DB_NAME"
	EnvDBPassword  = "THREADLINE_DB_PASSWORD"
	EnvRedisURL    = "THREADLINE_REDIS_URL"
	EnvJWTSecret   = "THREADLINE_JWT_SECRET"
	EnvJWTIssuer   = "THREADLINE_JWT_ISSUER"
	EnvGCPProject  = "THREADLINE_GCP_PROJECT_ID"
	EnvGCSBucket   = "THREADLINE_GCS_BUCKET_NAME"
	EnvOrdersTopic = "THREADLINE_PUBSUB_ORDERS_TOPIC"
	EnvOrdersSub   = "THREADLINE_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvNotifySub   = "THREADLINE_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPayMongoKey = "THREADLINE_PAYMONGO_SECRET_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
