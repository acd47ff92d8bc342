package config

import "os"

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicBase string
}

type UploadPost struct {
	BaseURL  string
	APIKey   string
	Username string
}

type Config struct {
	TwitterClientID     string
	TwitterClientSecret string
	PostgresURI         string
	RedisURI            string
	FrontendURL         string
	UploadPost          UploadPost
	R2                  R2
	SecretKey           string
	CookieName          string
}

func LoadConfig() *Config {
	return &Config{
		TwitterClientID:     getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
		PostgresURI:         getEnv("POSTGRES_URI", ""),
		RedisURI:            getEnv("REDIS_URI", ""),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		UploadPost: UploadPost{
			BaseURL:  getEnv("UPLOAD_POST_BASE_URL", "https://api.upload-post.com/api"),
			APIKey:   getEnv("UPLOAD_POST_API_KEY", ""),
			Username: getEnv("UPLOAD_POST_USERNAME", "leaderflow"),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicBase: getEnv("R2_PUBLIC_BASE", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "leaderflow_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
