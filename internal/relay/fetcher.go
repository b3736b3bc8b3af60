package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faanross/stegocrypt/internal/chunker"
	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// ErrQueryFailed is returned when the relay answers with an error other
// than NXDOMAIN, or the exchange itself fails.
var ErrQueryFailed = errors.New("relay: query failed")

// Fetcher retrieves published carriers over DNS
type Fetcher struct {
	server string
	domain string
	client *dns.Client
	enc    *chunker.DNSEncoder
	outMu  sync.Mutex

	Concurrency int           // parallel queries
	Retries     int           // extra attempts per record
	Backoff     time.Duration // delay before the first retry, doubled each time

	// Out receives a progress report when non-nil.
	Out io.Writer
}

// NewFetcher creates a fetcher querying server (host:port) for domain
func NewFetcher(server, domain string) *Fetcher {
	return &Fetcher{
		server:      server,
		domain:      domain,
		client:      &dns.Client{Net: "udp", Timeout: 5 * time.Second},
		enc:         chunker.NewDNSEncoder(domain),
		Concurrency: 8,
		Retries:     2,
		Backoff:     250 * time.Millisecond,
	}
}

// FetchManifest retrieves and parses the manifest of message id
func (f *Fetcher) FetchManifest(ctx context.Context, id string) (chunker.Manifest, error) {
	value, err := f.query(ctx, f.enc.ManifestName(id))
	if err != nil {
		return chunker.Manifest{}, fmt.Errorf("manifest fetch failed: %w", err)
	}
	return chunker.ParseManifest(id, value)
}

// FetchCarrier retrieves and reassembles the carrier file of message id.
// Data chunks are fetched first; parity chunks are only requested for
// stripes that lost data.
func (f *Fetcher) FetchCarrier(ctx context.Context, id string) ([]byte, error) {
	f.printf("\n📥 RETRIEVING MESSAGE: %s\n", id)
	f.printf("   Server: %s\n", f.server)

	manifest, err := f.FetchManifest(ctx, id)
	if err != nil {
		return nil, err
	}
	f.printf("   Chunks: %d data, %d parity\n", manifest.DataChunks, manifest.TotalChunks-manifest.DataChunks)

	chk := chunker.NewChunker(manifest.Config())
	chk.Out = f.Out
	got := make([]*chunker.Chunk, manifest.TotalChunks)

	data := make([]int, manifest.DataChunks)
	for i := range data {
		data[i] = i
	}
	if err := f.fetchChunks(ctx, chk, id, data, got); err != nil {
		return nil, err
	}

	if parity := parityFor(manifest, got); len(parity) > 0 {
		f.printf("   Fetching %d parity chunks\n", len(parity))
		if err := f.fetchChunks(ctx, chk, id, parity, got); err != nil {
			return nil, err
		}
	}

	chunks := make([]chunker.Chunk, 0, len(got))
	for _, c := range got {
		if c != nil {
			chunks = append(chunks, *c)
		}
	}
	f.printf("   Received %d of %d chunks\n", len(chunks), manifest.TotalChunks)

	return chk.Reassemble(manifest, chunks)
}

// fetchChunks fills got[seq] for every seq that could be retrieved and
// decoded. Lost chunks are left nil; only cancellation is an error.
func (f *Fetcher) fetchChunks(ctx context.Context, chk *chunker.Chunker, id string, seqs []int, got []*chunker.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.Concurrency, 1))

	var mu sync.Mutex
	for _, seq := range seqs {
		seq := seq
		g.Go(func() error {
			value, err := f.query(gctx, f.enc.ChunkName(seq, id))
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.printf("   ❌ Chunk %d: %v\n", seq, err)
				return nil
			}

			chunk, err := chk.DecodeChunk(value)
			if err != nil || int(chunk.Metadata.Sequence) != seq {
				f.printf("   ❌ Chunk %d: undecodable answer\n", seq)
				return nil
			}

			mu.Lock()
			got[seq] = chunk
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// parityFor lists the parity chunks of every stripe that is missing data
func parityFor(m chunker.Manifest, got []*chunker.Chunk) []int {
	var seqs []int
	if m.Parity == 0 {
		return nil
	}
	for s := 0; s*m.StripeWidth < m.DataChunks; s++ {
		lo, hi := s*m.StripeWidth, min((s+1)*m.StripeWidth, m.DataChunks)
		for _, c := range got[lo:hi] {
			if c == nil {
				base := m.DataChunks + s*m.Parity
				for p := 0; p < m.Parity; p++ {
					seqs = append(seqs, base+p)
				}
				break
			}
		}
	}
	return seqs
}

// query resolves one TXT record, retrying transport failures and SERVFAIL
func (f *Fetcher) query(ctx context.Context, name string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	var lastErr error
	backoff := f.Backoff
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, _, err := f.client.ExchangeContext(ctx, m, f.server)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrQueryFailed, err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		default:
			lastErr = fmt.Errorf("%w: %s: %s", ErrQueryFailed, name, dns.RcodeToString[resp.Rcode])
			continue
		}

		for _, ans := range resp.Answer {
			if txt, ok := ans.(*dns.TXT); ok && len(txt.Txt) > 0 {
				return strings.Join(txt.Txt, ""), nil
			}
		}
		return "", fmt.Errorf("%w: %s has no TXT answer", ErrNotFound, name)
	}
	return "", lastErr
}

func (f *Fetcher) printf(format string, a ...any) {
	f.outMu.Lock()
	defer f.outMu.Unlock()
	if f.Out != nil {
		fmt.Fprintf(f.Out, format, a...)
	}
}
