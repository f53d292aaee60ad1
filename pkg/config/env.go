package config

const (
	EnvPrefix = "TOWNDROP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "TOWNDROP_APP_ENV"
	EnvPort     = "TOWNDROP_APP_PORT"
	EnvDBDSN    = "TOWNDROP_DB_DSN"
	EnvDBHost   = "TOWNDROP_DB_HOST"
	EnvDBUser   = "TOWNDROP_DB_USER"
	EnvDBName   = "TOWNDROP_DB_NAME"
	EnvRedisURL = "TOWNDROP_REDIS_URL"

	EnvOrdersCurrency  = "TOWNDROP_ORDERS_CURRENCY"
	EnvDeliveryCodeTTL = "TOWNDROP_DELIVERY_CODE_TTL"

	EnvMomoClientID      = "TOWNDROP_MOMO_CLIENT_ID"
	EnvMomoWebhookSecret = "TOWNDROP_MOMO_WEBHOOK_SECRET"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
