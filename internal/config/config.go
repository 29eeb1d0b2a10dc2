package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	GeminiAPIKey     string
	GoogleTTSAPIKey  string
	DatabasePath     string
	STTModel         string
	TTSVoice         string
	RateLimit        int
	RateWindowSecs   int
	CookieSecureOnly bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - speech recognition and letter detection will not work")
	}

	ttsKey := os.Getenv("GOOGLE_TTS_API_KEY")
	if ttsKey == "" {
		// Both are Google Cloud API keys; a single key with both APIs enabled
		// is the common deployment, so fall back to the Gemini key.
		ttsKey = geminiKey
		if ttsKey == "" {
			log.Println("Warning: GOOGLE_TTS_API_KEY not set - speech synthesis will not work")
		}
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "data/app.db"
	}

	sttModel := os.Getenv("STT_MODEL")
	if sttModel == "" {
		sttModel = "gemini-2.0-flash"
	}

	ttsVoice := os.Getenv("TTS_VOICE")
	if ttsVoice == "" {
		ttsVoice = "ar-XA-Chirp3-HD-Algenib"
	}

	rateLimit := intEnv("RATE_LIMIT", 15)
	rateWindow := intEnv("RATE_WINDOW_SECONDS", 60)

	log.Printf("config: HTTP_ADDRESS=%s DATABASE_PATH=%s", addr, dbPath)
	return Config{
		HTTPAddress:      addr,
		GeminiAPIKey:     geminiKey,
		GoogleTTSAPIKey:  ttsKey,
		DatabasePath:     dbPath,
		STTModel:         sttModel,
		TTSVoice:         ttsVoice,
		RateLimit:        rateLimit,
		RateWindowSecs:   rateWindow,
		CookieSecureOnly: os.Getenv("COOKIE_SECURE") == "1",
	}
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Warning: ignoring invalid %s=%q", key, raw)
		return def
	}
	return n
}
