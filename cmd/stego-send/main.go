package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/chunker"
	"github.com/faanross/stegocrypt/internal/relay"
)

// ================================================================================
// RELAY UPLOAD CLIENT - Sender side of the covert channel
// Chunks a stego carrier and publishes it through the relay's HTTP API
// ================================================================================

func main() {
	cfg, err := relay.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	api := flag.String("api", apiURL(cfg.HTTPAddr), "Relay HTTP API (STEGO_HTTP_ADDR)")
	input := flag.String("input", "", "Stego carrier file (PNG, BMP or WAV)")
	encoding := flag.String("encoding", chunker.ENCODE_BASE32, "Chunk encoding: base32 or hex")
	compress := flag.Bool("compress", false, "LZ4 compress the carrier before chunking")
	stripe := flag.Int("stripe", chunker.DEFAULT_STRIPE_WIDTH, "Data chunks per parity stripe")
	parity := flag.Int("parity", 2, "Parity chunks per stripe (0 disables recovery)")
	timeout := flag.Duration("timeout", 30*time.Second, "Upload timeout")
	flag.Parse()

	if *input == "" {
		log.Fatal("Please provide -input (stego carrier)")
	}

	fmt.Println("\n🚀 DNS COVERT CHANNEL UPLOADER")

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("Failed to read carrier: %v", err)
	}
	kind, err := carrier.Sniff(data)
	if err != nil {
		log.Fatalf("Not a carrier file: %v", err)
	}
	fmt.Printf("📷 Loaded %s carrier: %s (%d bytes)\n", kind, *input, len(data))

	chk := chunker.NewChunker(chunker.ChunkerConfig{
		Encoding:    *encoding,
		Compression: *compress,
		StripeWidth: *stripe,
		Parity:      *parity,
	})
	chk.Out = os.Stdout

	msg, err := chk.ChunkCarrier(data)
	if err != nil {
		log.Fatalf("Failed to chunk: %v", err)
	}

	fmt.Printf("\n📤 UPLOADING MESSAGE: %s\n", msg.Manifest.MessageID)
	fmt.Printf("   Chunks to upload: %d (%d data, %d parity)\n",
		msg.Manifest.TotalChunks, msg.Manifest.DataChunks, msg.Manifest.TotalChunks-msg.Manifest.DataChunks)
	fmt.Printf("   API: %s\n", *api)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := relay.Upload(ctx, &http.Client{Timeout: *timeout}, *api, msg)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	fmt.Printf("\n✅ Upload successful!\n")
	fmt.Printf("   Message ID: %s\n", resp.MessageID)
	fmt.Printf("   Chunks uploaded: %d\n", resp.Chunks)

	fmt.Println("\n🎉 Upload complete!")
	fmt.Printf("\nExample receiver command:\n")
	fmt.Printf("  go run ./cmd/stego-receive -msg %s -decode\n", resp.MessageID)
}

// apiURL turns a listen address like ":8080" into a base URL
func apiURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
