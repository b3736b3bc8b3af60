package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/decoder"
	"github.com/faanross/stegocrypt/internal/relay"
	"github.com/faanross/stegocrypt/internal/scrypto"
)

// ================================================================================
// DNS RECEIVER CLIENT - Retrieves and decodes covert messages
// ================================================================================

func main() {
	cfg, err := relay.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	server := flag.String("server", cfg.DNSServer, "DNS relay host:port (STEGO_DNS_SERVER)")
	domain := flag.String("domain", cfg.Domain, "Relay domain (STEGO_DOMAIN)")
	msgID := flag.String("msg", "", "Message ID to retrieve")
	output := flag.String("output", ".", "Output directory")
	decode := flag.Bool("decode", false, "Decode the hidden message after retrieval")
	password := flag.String("password", "", "Password for decoding (prompted when empty)")
	concurrency := flag.Int("concurrency", 8, "Parallel DNS queries")
	retries := flag.Int("retries", 2, "Retries per record")
	flag.Parse()

	if *msgID == "" {
		fmt.Println("Please specify -msg ID")
		flag.Usage()
		os.Exit(2)
	}

	fmt.Println("\n📡 DNS COVERT CHANNEL RECEIVER")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fetcher := relay.NewFetcher(*server, *domain)
	fetcher.Concurrency = *concurrency
	fetcher.Retries = *retries
	fetcher.Out = os.Stdout

	startTime := time.Now()

	data, err := fetcher.FetchCarrier(ctx, *msgID)
	switch {
	case errors.Is(err, relay.ErrNotFound):
		log.Fatalf("Message %s is not published on %s", *msgID, *domain)
	case err != nil:
		log.Fatalf("Retrieval failed: %v", err)
	}
	elapsed := time.Since(startTime)

	kind, err := carrier.Sniff(data)
	if err != nil {
		log.Fatalf("Retrieved data is not a carrier: %v", err)
	}

	carrierPath := filepath.Join(*output, fmt.Sprintf("received_%s.%s", *msgID, kind))
	if err := os.WriteFile(carrierPath, data, 0644); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	fmt.Printf("\n📊 RETRIEVAL SUMMARY:\n")
	fmt.Printf("   Message ID: %s\n", *msgID)
	fmt.Printf("   Size: %d bytes\n", len(data))
	fmt.Printf("   Time: %v\n", elapsed)
	fmt.Printf("   Rate: %.2f KB/s\n", float64(len(data))/1024/elapsed.Seconds())
	fmt.Printf("   Saved to: %s\n", carrierPath)

	if *decode {
		fmt.Printf("\n🔓 Decoding %s carrier...\n", kind)

		pass := []byte(*password)
		if len(pass) == 0 {
			if pass, err = scrypto.GetSecurePassword("Enter password: "); err != nil {
				log.Fatal(err)
			}
		}
		defer scrypto.Wipe(pass)

		outputPath := filepath.Join(*output, fmt.Sprintf("decoded_%s.txt", *msgID))
		if err := decodeAndSave(data, pass, outputPath); err != nil {
			log.Fatalf("Decode failed: %v", err)
		}
	}

	fmt.Println("\n✅ RETRIEVAL COMPLETE!")
}

// decodeAndSave extracts the hidden message from a carrier file
func decodeAndSave(data, password []byte, outputPath string) error {
	c, err := carrier.Load(bytes.NewReader(data))
	if err != nil {
		return err
	}

	ssd := decoder.NewSecureStegoDecoder(c, password)
	ssd.Out = os.Stdout

	if err := ssd.ExtractSecurePayload(); err != nil {
		return err
	}
	result, err := ssd.DecryptPayload()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, result.Message, 0600); err != nil {
		return err
	}
	fmt.Printf("✅ Decoded message saved to: %s\n", outputPath)
	return nil
}
