package decoder

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/scrypto"
)

// Number of leading slots AnalyzeSecurity samples.
const analysisSampleSlots = 30000

// SecurityReport summarises the LSB plane of a carrier.
type SecurityReport struct {
	Slots   int     // slots sampled
	Zeros   int     // sampled LSBs equal to 0
	Ones    int     // sampled LSBs equal to 1
	Entropy float64 // Shannon entropy of LSB bytes, 0..8 bits
}

// ZeroRatio returns the fraction of sampled LSBs equal to 0.
func (r SecurityReport) ZeroRatio() float64 {
	if r.Slots == 0 {
		return 0
	}
	return float64(r.Zeros) / float64(r.Slots)
}

// AnalyzeSecurity measures the LSB distribution of the leading slots and
// writes a report to w when w is non-nil.
func AnalyzeSecurity(s lsb.Slots, w io.Writer) SecurityReport {
	n := min(s.Len(), analysisSampleSlots)
	r := SecurityReport{Slots: n}

	frequency := make(map[byte]int)
	var b byte
	for i := 0; i < n; i++ {
		bit := s.Bit(i)
		if bit == 0 {
			r.Zeros++
		} else {
			r.Ones++
		}

		b = b<<1 | bit
		if i%8 == 7 {
			frequency[b]++
			b = 0
		}
	}

	total := float64(n / 8)
	for _, count := range frequency {
		p := float64(count) / total
		r.Entropy -= p * math.Log2(p)
	}

	if w == nil {
		return r
	}

	zeroPct := r.ZeroRatio() * 100
	fmt.Fprintf(w, "\n🔒 Security Analysis:\n")
	fmt.Fprintf(w, "   Slots sampled: %d\n", r.Slots)
	fmt.Fprintf(w, "   LSB Distribution: %.1f%% zeros, %.1f%% ones\n", zeroPct, 100-zeroPct)
	fmt.Fprintf(w, "   LSB Entropy: %.4f bits (max: 8.0)\n", r.Entropy)

	switch {
	case r.Entropy > 7.9:
		fmt.Fprintf(w, "   🔐 High entropy - LSB plane looks random\n")
	case zeroPct > 45 && zeroPct < 55:
		fmt.Fprintf(w, "   ⚠️  Balanced LSBs - may contain encrypted data\n")
	default:
		fmt.Fprintf(w, "   📸 LSB plane looks like natural media\n")
	}
	return r
}

// TryMultiplePasswords reads the framed payload once and tries each
// password in turn. It returns the message and the index of the password
// that opened it. If the carrier holds no valid container the extraction
// error is returned immediately; if no password works the result is
// scrypto.ErrAuthentication.
func TryMultiplePasswords(c carrier.Carrier, passwords []string, w io.Writer) (string, int, error) {
	ssd := NewSecureStegoDecoder(c, nil)
	if err := ssd.ExtractSecurePayload(); err != nil {
		return "", -1, err
	}

	report := func(format string, a ...any) {
		if w != nil {
			fmt.Fprintf(w, format, a...)
		}
	}
	report("\n🔑 Trying %d passwords:\n", len(passwords))

	for i, pass := range passwords {
		report("   Attempt %d/%d: ", i+1, len(passwords))

		ssd.password = []byte(pass)
		result, err := ssd.DecryptPayload()
		if err != nil {
			if errors.Is(err, scrypto.ErrAuthentication) {
				report("❌ Wrong password\n")
				continue
			}
			report("❌ Failed: %v\n", err)
			return "", -1, err
		}

		report("✅ SUCCESS!\n")
		return string(result.Message), i, nil
	}

	report("\n❌ All passwords failed\n")
	return "", -1, scrypto.ErrAuthentication
}
