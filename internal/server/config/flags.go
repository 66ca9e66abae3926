package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/flagx"
	"github.com/dmitrijs2005/zkvault/internal/timex"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-storage    "postgres" or "memory"
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-s string   token signing secret
//	-t string   access token TTL, compact grammar ("15m")
//	-l string   session TTL, compact grammar ("7d")
//	-m int      max concurrently active devices per user
//	-o string   comma-separated CORS origins
//
// Duration flags use the same grammar as token TTLs; a malformed value panics.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-storage", "-d", "-r", "-s", "-t", "-l", "-m", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run the gRPC health endpoint")
	fs.StringVar(&config.Storage, "storage", config.Storage, "storage backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")
	fs.IntVar(&config.MaxDevices, "m", config.MaxDevices, "max concurrently active devices per user")

	accessTTL := fs.String("t", "", "access token TTL (e.g. 15m)")
	sessionTTL := fs.String("l", "", "session TTL (e.g. 7d)")
	origins := fs.String("o", "", "comma-separated CORS origins")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *accessTTL != "" {
		config.AccessTokenTTL = mustParseCompact(*accessTTL)
	}
	if *sessionTTL != "" {
		config.SessionTTL = mustParseCompact(*sessionTTL)
	}
	if *origins != "" {
		config.CORSOrigins = splitList(*origins)
	}
}

func mustParseCompact(s string) time.Duration {
	d, err := timex.ParseCompact(s)
	if err != nil {
		panic(err)
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
