package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/faanross/stegocrypt/internal/chunker"
)

// Writes a stego carrier as a BIND zone file that dns-server -zone can load.
func main() {
	input := flag.String("input", "", "Stego carrier file")
	domain := flag.String("domain", "covert.example.com", "Relay domain")
	output := flag.String("output", "zone.txt", "Output zone file")
	encoding := flag.String("encoding", chunker.ENCODE_BASE32, "Chunk encoding (hex or base32)")
	compress := flag.Bool("compress", true, "LZ4 the carrier when it shrinks")
	stripe := flag.Int("stripe", chunker.DEFAULT_STRIPE_WIDTH, "Data chunks per parity stripe")
	parity := flag.Int("parity", 2, "Parity chunks per stripe (0 disables recovery)")
	verbose := flag.Bool("verbose", false, "Show chunking details")
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: dns-encoder -input <stego.png|stego.wav> [-domain d] [-output zone.txt]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("❌ Error reading file: %v", err)
	}
	fmt.Printf("📁 Carrier: %s (%d bytes)\n", *input, len(data))

	chk := chunker.NewChunker(chunker.ChunkerConfig{
		Encoding:    *encoding,
		Compression: *compress,
		StripeWidth: *stripe,
		Parity:      *parity,
	})
	if *verbose {
		chk.Out = os.Stdout
	}

	msg, err := chk.ChunkCarrier(data)
	if err != nil {
		log.Fatalf("❌ Chunking failed: %v", err)
	}

	enc := chunker.NewDNSEncoder(*domain)
	records := enc.EncodeToDNS(msg)

	fmt.Printf("🧩 Chunks: %d data + %d parity\n", msg.Manifest.DataChunks, msg.Manifest.TotalChunks-msg.Manifest.DataChunks)
	fmt.Printf("🌐 DNS Records: %d\n", len(records))
	fmt.Printf("📋 Message ID: %s\n", msg.Manifest.MessageID)

	fmt.Println("\nExample DNS records:")
	for i := 0; i < 3 && i < len(records); i++ {
		r := records[i]
		value := r.Value
		if len(value) > 50 {
			value = value[:50] + "..."
		}
		fmt.Printf("  %s TXT \"%s\"\n", r.Name, value)
	}

	if err := os.WriteFile(*output, []byte(enc.GenerateZoneFile(records)), 0644); err != nil {
		log.Fatalf("❌ Error writing zone file: %v", err)
	}

	fmt.Printf("\n✅ Zone file saved to: %s\n", *output)
	fmt.Println("\nNext steps:")
	fmt.Printf("1. dns-server -domain %s -zone %s\n", *domain, *output)
	fmt.Printf("2. stego-receive -domain %s -msg %s -decode\n", *domain, msg.Manifest.MessageID)
}
