package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName          string `json:"app_name"`
	ListenIP         string `json:"listen_ip"`
	ListenPort       int    `json:"listen_port"`
	SessionKey       string `json:"session_key"`
	JWTSecret        string `json:"jwt_secret"`
	DBPath           string `json:"db_path"`
	LockoutThreshold int    `json:"lockout_threshold"`
	LockoutMinutes   int    `json:"lockout_minutes"`
	CaptchaEnabled   bool   `json:"captcha_enabled"`
}

// LockoutWindow is the duration a locked account stays locked.
func (c *Config) LockoutWindow() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}

var AppConfig Config

func LoadConfig(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Decode into a fresh Config so values from a previous load cannot leak.
	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return err
	}
	AppConfig = cfg

	// Optional .env overlay; missing file is fine.
	godotenv.Load()

	// Environment variables override file values
	if v := os.Getenv("CERTPORTAL_SESSION_KEY"); v != "" {
		AppConfig.SessionKey = v
	}
	if v := os.Getenv("CERTPORTAL_JWT_SECRET"); v != "" {
		AppConfig.JWTSecret = v
	}
	if v := os.Getenv("CERTPORTAL_DB_PATH"); v != "" {
		AppConfig.DBPath = v
	}
	if v := os.Getenv("CERTPORTAL_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			AppConfig.ListenPort = port
		}
	}

	if AppConfig.DBPath == "" {
		AppConfig.DBPath = "./certportal.db"
	}
	if AppConfig.LockoutThreshold <= 0 {
		AppConfig.LockoutThreshold = 3
	}
	if AppConfig.LockoutMinutes <= 0 {
		AppConfig.LockoutMinutes = 5
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if AppConfig.SessionKey == "" || AppConfig.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		log.Println("WARNING: No session key configured. Generating a random key. Sessions will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		AppConfig.SessionKey = hex.EncodeToString(randomKey)
	}
	if AppConfig.JWTSecret == "" {
		log.Println("WARNING: No JWT secret configured. Generating a random one. API tokens will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		AppConfig.JWTSecret = hex.EncodeToString(randomKey)
	}

	return nil
}
