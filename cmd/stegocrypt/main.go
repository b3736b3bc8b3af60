package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/decoder"
	"github.com/faanross/stegocrypt/internal/encoder"
	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/scrypto"
	"github.com/faanross/stegocrypt/internal/spec"
)

const usage = `stegocrypt - password-protected messages in image and audio carriers

Usage:
  stegocrypt hide-image    -in cover.png -out stego.png [-message text | -message-file f] [-password p]
  stegocrypt extract-image -in stego.png [-output f] [-password p | -trylist a,b,c]
  stegocrypt hide-audio    -in cover.wav -out stego.wav [-message text | -message-file f] [-password p]
  stegocrypt extract-audio -in stego.wav [-output f] [-password p | -trylist a,b,c]
  stegocrypt capacity      -in carrier
  stegocrypt analyze       -in carrier
`

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "hide-image":
		err = runHide(cmd, args, false)
	case "hide-audio":
		err = runHide(cmd, args, true)
	case "extract-image":
		err = runExtract(cmd, args, false)
	case "extract-audio":
		err = runExtract(cmd, args, true)
	case "capacity":
		err = runCapacity(args)
	case "analyze":
		err = runAnalyze(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("❌ %v", explain(err))
	}
}

// explain turns the library's error kinds into a one-line diagnosis
func explain(err error) error {
	switch {
	case errors.Is(err, scrypto.ErrAuthentication):
		return fmt.Errorf("wrong password or tampered carrier (%w)", err)
	case errors.Is(err, lsb.ErrCarrierTooSmall), errors.Is(err, lsb.ErrTruncatedPayload):
		return fmt.Errorf("no hidden message found (%w)", err)
	case errors.Is(err, lsb.ErrCapacityExceeded):
		return fmt.Errorf("message does not fit in this carrier (%w)", err)
	}
	return err
}

func loadCarrier(path string, audio bool) (carrier.Carrier, error) {
	if path == "" {
		return nil, errors.New("please provide a carrier file with -in")
	}
	c, err := carrier.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if isAudio := c.Kind() == carrier.KindWAV; isAudio != audio {
		want := "image"
		if isAudio {
			want = "audio"
		}
		return nil, fmt.Errorf("%s is a %s carrier; use hide-%s / extract-%s", path, c.Kind(), want, want)
	}
	return c, nil
}

func describe(path string, c carrier.Carrier) {
	fmt.Printf("\n📁 Carrier: %s\n", path)
	switch v := c.(type) {
	case *carrier.Image:
		fmt.Printf("   Format: %s, %dx%d\n", v.Kind(), v.Width(), v.Height())
	case *carrier.Audio:
		fmt.Printf("   Format: WAV, %d ch, %d Hz, %d frames\n", v.Format.Channels, v.Format.SampleRate, v.Frames())
	}
	fmt.Printf("   Slots: %d\n", c.Slots().Len())
	fmt.Printf("   Capacity: %d bytes (max message %d bytes)\n", c.Capacity(), max(encoder.MaxMessageLen(c.Capacity()), 0))
}

func runHide(name string, args []string, audio bool) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	in := fs.String("in", "", "Cover carrier file")
	out := fs.String("out", "", "Output stego file")
	message := fs.String("message", "", "Message text")
	messageFile := fs.String("message-file", "", "Read the message from a file")
	password := fs.String("password", "", "Password (prompt if not provided)")
	quiet := fs.Bool("quiet", false, "Only print errors")
	_ = fs.Parse(args)

	if *out == "" {
		return errors.New("please provide an output file with -out")
	}

	msg := []byte(*message)
	if *messageFile != "" {
		data, err := os.ReadFile(*messageFile)
		if err != nil {
			return fmt.Errorf("error reading message file: %w", err)
		}
		msg = data
	}

	c, err := loadCarrier(*in, audio)
	if err != nil {
		return err
	}

	if !*quiet {
		fmt.Println("\n🔐 Secure Steganography Encoder")
		fmt.Println("=" + strings.Repeat("=", 40))
		describe(*in, c)
		fmt.Printf("\n📄 Message: %d bytes\n", len(msg))
	}

	if need := encoder.RequiredBytes(len(msg)); need > c.Capacity() {
		return fmt.Errorf("%w: capacity=%d bytes, need %d bytes", lsb.ErrCapacityExceeded, c.Capacity(), need)
	}

	pass, err := readPassword(*password, true)
	if err != nil {
		return err
	}
	defer scrypto.Wipe(pass)

	sse := encoder.NewSecureStegoEncoder(msg, pass)
	if !*quiet {
		sse.Out = os.Stdout
	}

	var stego carrier.Carrier
	switch v := c.(type) {
	case *carrier.Image:
		stego, err = sse.HideImage(v)
	case *carrier.Audio:
		stego, err = sse.HideAudio(v)
	}
	if err != nil {
		return err
	}

	if err := carrier.SaveFile(*out, stego); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}

	if !*quiet {
		fmt.Printf("\n✅ Secure steganography complete!\n")
		fmt.Printf("   Output: %s\n", *out)
		fmt.Printf("   Security: AES-256-GCM + PBKDF2-%d\n", spec.PBKDF2_ITERS)
	}
	return nil
}

func runExtract(name string, args []string, audio bool) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	in := fs.String("in", "", "Stego carrier file")
	output := fs.String("output", "", "Save extracted message to file")
	password := fs.String("password", "", "Password (prompt if not provided)")
	tryList := fs.String("trylist", "", "Comma-separated passwords to try")
	verbose := fs.Bool("verbose", false, "Show full extracted message")
	_ = fs.Parse(args)

	c, err := loadCarrier(*in, audio)
	if err != nil {
		return err
	}

	fmt.Println("\n🔓 Secure Steganography Decoder")
	fmt.Println("=" + strings.Repeat("=", 40))
	describe(*in, c)

	var message []byte
	if *tryList != "" {
		text, idx, err := decoder.TryMultiplePasswords(c, strings.Split(*tryList, ","), os.Stdout)
		if err != nil {
			return err
		}
		fmt.Printf("   Password #%d opened the message\n", idx+1)
		message = []byte(text)
	} else {
		pass, err := readPassword(*password, false)
		if err != nil {
			return err
		}
		defer scrypto.Wipe(pass)

		ssd := decoder.NewSecureStegoDecoder(c, pass)
		ssd.Out = os.Stdout
		if err := ssd.ExtractSecurePayload(); err != nil {
			return err
		}
		result, err := ssd.DecryptPayload()
		if err != nil {
			return err
		}
		message = result.Message

		fmt.Printf("\n📊 Extraction Statistics:\n")
		fmt.Printf("   Payload size: %d bytes\n", result.PayloadSize)
		fmt.Printf("   Sealed at: %s\n", result.SealedAt.UTC().Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("   Authentication: %v\n", result.Authenticated)
	}

	printMessage(message, *verbose)

	if *output != "" {
		if err := os.WriteFile(*output, message, 0600); err != nil {
			return fmt.Errorf("error saving output: %w", err)
		}
		fmt.Printf("\n💾 Message saved to: %s\n", *output)
	}

	fmt.Println("\n✅ Secure decoding complete!")
	return nil
}

func printMessage(message []byte, verbose bool) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📝 DECRYPTED MESSAGE:")
	fmt.Println(strings.Repeat("=", 60))

	text := string(message)
	if verbose || len(text) <= 500 {
		fmt.Println(text)
	} else {
		fmt.Printf("%s\n... [%d more bytes] ...\n%s\n",
			text[:200],
			len(text)-400,
			text[len(text)-200:])
		fmt.Printf("\n(Use -verbose flag to see full message)\n")
	}
	fmt.Println(strings.Repeat("=", 60))
}

func runCapacity(args []string) error {
	fs := flag.NewFlagSet("capacity", flag.ExitOnError)
	in := fs.String("in", "", "Carrier file")
	_ = fs.Parse(args)

	if *in == "" {
		return errors.New("please provide a carrier file with -in")
	}
	c, err := carrier.LoadFile(*in)
	if err != nil {
		return err
	}
	describe(*in, c)
	return nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	in := fs.String("in", "", "Carrier file")
	_ = fs.Parse(args)

	if *in == "" {
		return errors.New("please provide a carrier file with -in")
	}
	c, err := carrier.LoadFile(*in)
	if err != nil {
		return err
	}
	describe(*in, c)
	decoder.AnalyzeSecurity(c.Slots(), os.Stdout)
	return nil
}

// readPassword returns the -password value or prompts for one. Hiding
// asks twice.
func readPassword(flagValue string, confirm bool) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}

	pass, err := scrypto.GetSecurePassword("\n🔑 Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("password error: %w", err)
	}
	if !confirm {
		return pass, nil
	}

	again, err := scrypto.GetSecurePassword("🔑 Confirm password: ")
	if err != nil {
		return nil, fmt.Errorf("password error: %w", err)
	}
	defer scrypto.Wipe(again)
	if !bytes.Equal(pass, again) {
		return nil, errors.New("passwords do not match")
	}
	return pass, nil
}
