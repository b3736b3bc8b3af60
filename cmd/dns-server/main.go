package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faanross/stegocrypt/internal/chunker"
	"github.com/faanross/stegocrypt/internal/relay"
	"github.com/miekg/dns"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := relay.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	domain := flag.String("domain", cfg.Domain, "Domain to serve (STEGO_DOMAIN)")
	addr := flag.String("addr", ":5353", "DNS listen address")
	httpAddr := flag.String("http", cfg.HTTPAddr, "HTTP upload API address (STEGO_HTTP_ADDR)")
	redisAddr := flag.String("redis", cfg.RedisAddr, "Redis address, empty for in-memory storage (STEGO_REDIS_ADDR)")
	zoneFile := flag.String("zone", "", "Zone file to publish at startup")
	cleanInterval := flag.Duration("clean", 1*time.Hour, "Cleanup interval for old messages")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var storage relay.Storage
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to reach redis at %s: %v", *redisAddr, err)
		}
		defer client.Close()
		log.Printf("📁 Using redis storage (%s)", *redisAddr)
		storage = relay.NewRedisStorage(client, "")
	} else {
		log.Println("💾 Using in-memory storage")
		storage = relay.NewMemoryStorage()
	}

	server := relay.NewServer(*domain, storage)
	server.Logger = log.Default()

	if *zoneFile != "" {
		if err := loadZone(ctx, server, *zoneFile); err != nil {
			log.Printf("Failed to load zone file: %v", err)
		}
	}

	go cleanup(ctx, storage, *cleanInterval)

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           server.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("📡 HTTP API starting on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP API failed: %v", err)
		}
	}()

	dnsServer := &dns.Server{
		Addr:    *addr,
		Net:     "udp",
		Handler: server,
	}
	go func() {
		if err := dnsServer.ListenAndServe(); err != nil {
			log.Fatalf("DNS server failed: %v", err)
		}
	}()

	printStats(ctx, server)

	fmt.Printf("\n🌐 DNS relay starting on %s\n", *addr)
	fmt.Printf("📍 Domain: %s\n", server.Domain())
	fmt.Printf("🧹 Cleanup: Every %v\n", *cleanInterval)
	fmt.Println("\n✅ Server ready!")

	<-ctx.Done()
	fmt.Println("\n🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dnsServer.ShutdownContext(shutdownCtx); err != nil {
		log.Printf("DNS shutdown: %v", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	printStats(shutdownCtx, server)
}

func loadZone(ctx context.Context, server *relay.Server, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := chunker.NewDNSEncoder(server.Domain()).ParseZoneFile(f)
	if err != nil {
		return err
	}
	id, err := server.PublishRecords(ctx, records)
	if err != nil {
		return err
	}
	log.Printf("✅ Loaded message %s from %s (%d records)", id, path, len(records))
	return nil
}

func cleanup(ctx context.Context, storage relay.Storage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := storage.CleanExpired(ctx, interval)
			if err != nil {
				log.Printf("Cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("🧹 Cleaned %d expired messages", removed)
			}
		}
	}
}

func printStats(ctx context.Context, server *relay.Server) {
	status, err := server.Status(ctx)
	if err != nil {
		log.Printf("Failed to read stats: %v", err)
		return
	}

	fmt.Printf("\n📊 Storage Statistics:\n")
	fmt.Printf("   Total messages: %d\n", status.Storage.TotalMessages)
	fmt.Printf("   New (unfetched): %d\n", status.Storage.NewMessages)
	fmt.Printf("   Delivered: %d\n", status.Storage.Delivered)
	fmt.Printf("   Total chunks: %d\n", status.Storage.TotalChunks)
	fmt.Printf("   Queries served/missed: %d/%d\n", status.Served, status.Missed)

	if len(status.Messages) > 0 {
		fmt.Println("\n📬 Stored Messages:")
		for _, m := range status.Messages {
			fmt.Printf("   %s: %d chunks, status=%s, fetches=%d\n", m.ID, m.TotalChunks, m.State, m.Fetches)
		}
	}
}
