package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
	Auth     AuthConfig     `json:"auth"`
}

type ServerConfig struct {
	Addr string `json:"addr"` // 监听地址，默认 :8080
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig 用于配置 Redis 连接
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`  // 密码
	DB       int    `json:"db"`        // 数据库编号
	PoolSize int    `json:"pool_size"` // 连接池大小
}

type KafkaConfig struct {
	Brokers     []string `json:"brokers"`
	NotifyTopic string   `json:"notify_topic"` // 离线推送通知 topic
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Mechanism   string   `json:"mechanism"` // PLAIN / SCRAM-SHA-256 / SCRAM-SHA-512
	UseTLS      bool     `json:"use_tls"`
	CertFile    string   `json:"cert_file"`
	KeyFile     string   `json:"key_file"`
	CAFile      string   `json:"ca_file"`
}

type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	TokenExpiry   int    `json:"token_expiry"`   // in hours
	RefreshExpiry int    `json:"refresh_expiry"` // in hours
}

func LoadConfig() (config Config, err error) {
	path := os.Getenv("FLICK_CONFIG")
	if path == "" {
		path = "config/config.json"
	}
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("Error closing config file: %v", closeErr)
		}
	}(file)
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return config, err
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	return config, nil
}
