package relay

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the relay commands. Flags override
// it; values come from the environment, optionally seeded from a .env file.
type Config struct {
	DNSServer string // STEGO_DNS_SERVER, host:port the receiver queries
	Domain    string // STEGO_DOMAIN
	HTTPAddr  string // STEGO_HTTP_ADDR, upload API listen address or URL
	RedisAddr string // STEGO_REDIS_ADDR, empty for in-memory storage
}

// DefaultConfig is used for anything the environment leaves unset
var DefaultConfig = Config{
	DNSServer: "localhost:5353",
	Domain:    "covert.example.com",
	HTTPAddr:  ":8080",
}

// LoadConfig reads envFile (a missing file is fine) and the environment.
// Variables already set in the environment win over the file.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	return Config{
		DNSServer: getenv("STEGO_DNS_SERVER", DefaultConfig.DNSServer),
		Domain:    getenv("STEGO_DOMAIN", DefaultConfig.Domain),
		HTTPAddr:  getenv("STEGO_HTTP_ADDR", DefaultConfig.HTTPAddr),
		RedisAddr: getenv("STEGO_REDIS_ADDR", DefaultConfig.RedisAddr),
	}, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
