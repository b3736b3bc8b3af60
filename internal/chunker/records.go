package chunker

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DEFAULT_TTL balances resolver caching against freshness
const DEFAULT_TTL = 300

// RecordKind says what a relay record name points at
type RecordKind int

const (
	RecordManifest RecordKind = iota
	RecordChunk
)

// RecordName is a parsed relay record name
type RecordName struct {
	Kind      RecordKind
	Sequence  int
	MessageID string
}

// ManifestLabel is the label of a message's manifest record
func ManifestLabel(id string) string {
	return "m-" + id
}

// ChunkLabel is the label of chunk seq of a message
func ChunkLabel(seq int, id string) string {
	return fmt.Sprintf("c-%d-%s", seq, id)
}

// ParseRecordName splits qname into a relay record under domain.
// Names are case-insensitive and may carry a trailing dot.
//   m-<id>.<domain>
//   c-<seq>-<id>.<domain>
func ParseRecordName(qname, domain string) (RecordName, error) {
	qname = strings.ToLower(strings.TrimSuffix(qname, "."))
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	label, ok := strings.CutSuffix(qname, "."+domain)
	if !ok || label == "" || strings.Contains(label, ".") {
		return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
	}

	if id, ok := strings.CutPrefix(label, "m-"); ok {
		if _, err := ParseID(id); err != nil {
			return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
		}
		return RecordName{Kind: RecordManifest, MessageID: id}, nil
	}

	if rest, ok := strings.CutPrefix(label, "c-"); ok {
		seqStr, id, found := strings.Cut(rest, "-")
		if !found {
			return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
		}
		seq, err := strconv.Atoi(seqStr)
		if err != nil || seq < 0 || seq > 0xFFFF {
			return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
		}
		if _, err := ParseID(id); err != nil {
			return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
		}
		return RecordName{Kind: RecordChunk, Sequence: seq, MessageID: id}, nil
	}

	return RecordName{}, fmt.Errorf("%w: %s", ErrInvalidName, qname)
}

// DNSRecord represents a DNS TXT record
type DNSRecord struct {
	Name  string // Fully qualified, with trailing dot
	TTL   uint32
	Value string
}

// DNSEncoder maps chunked messages onto TXT records under a domain
type DNSEncoder struct {
	domain string
	ttl    uint32
}

// NewDNSEncoder creates an encoder for DNS transport
func NewDNSEncoder(domain string) *DNSEncoder {
	return &DNSEncoder{
		domain: strings.ToLower(strings.TrimSuffix(domain, ".")),
		ttl:    DEFAULT_TTL,
	}
}

// ManifestName is the fully qualified manifest record name for id
func (de *DNSEncoder) ManifestName(id string) string {
	return dns.Fqdn(ManifestLabel(id) + "." + de.domain)
}

// ChunkName is the fully qualified name of chunk seq of id
func (de *DNSEncoder) ChunkName(seq int, id string) string {
	return dns.Fqdn(ChunkLabel(seq, id) + "." + de.domain)
}

// EncodeToDNS converts a message into its manifest record followed by
// one record per chunk.
func (de *DNSEncoder) EncodeToDNS(msg *Message) []DNSRecord {
	id := msg.Manifest.MessageID
	records := make([]DNSRecord, 0, len(msg.Chunks)+1)

	records = append(records, DNSRecord{
		Name:  de.ManifestName(id),
		TTL:   de.ttl,
		Value: msg.Manifest.String(),
	})
	for _, chunk := range msg.Chunks {
		records = append(records, DNSRecord{
			Name:  de.ChunkName(int(chunk.Metadata.Sequence), id),
			TTL:   de.ttl,
			Value: chunk.Encoded,
		})
	}
	return records
}

// TXT converts a record into a miekg/dns resource record
func (r DNSRecord) TXT() *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   r.Name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    r.TTL,
		},
		Txt: []string{r.Value},
	}
}

// GenerateZoneFile creates a BIND-compatible zone file
func (de *DNSEncoder) GenerateZoneFile(records []DNSRecord) string {
	var zone strings.Builder

	fmt.Fprintf(&zone, "; Stego carrier relay zone for %s\n", de.domain)
	fmt.Fprintf(&zone, "; Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&zone, "; Records: %d\n\n", len(records))

	for _, record := range records {
		zone.WriteString(record.TXT().String())
		zone.WriteByte('\n')
	}
	return zone.String()
}

// ParseZoneFile reads the TXT records of a zone file
func (de *DNSEncoder) ParseZoneFile(r io.Reader) ([]DNSRecord, error) {
	var records []DNSRecord

	zp := dns.NewZoneParser(r, dns.Fqdn(de.domain), "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		txt, isTXT := rr.(*dns.TXT)
		if !isTXT {
			continue
		}
		records = append(records, DNSRecord{
			Name:  strings.ToLower(txt.Hdr.Name),
			TTL:   txt.Hdr.Ttl,
			Value: strings.Join(txt.Txt, ""),
		})
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zone parse failed: %w", err)
	}
	return records, nil
}

// ParseFromDNS sorts records into the manifest and decoded chunks of a
// single message. Records outside the domain are ignored.
func (de *DNSEncoder) ParseFromDNS(records []DNSRecord) (Manifest, []Chunk, error) {
	var (
		manifest     Manifest
		haveManifest bool
		pending      []string
	)

	for _, record := range records {
		name, err := ParseRecordName(record.Name, de.domain)
		if err != nil {
			continue
		}
		switch name.Kind {
		case RecordManifest:
			if haveManifest {
				return Manifest{}, nil, fmt.Errorf("%w: more than one manifest", ErrInvalidManifest)
			}
			manifest, err = ParseManifest(name.MessageID, record.Value)
			if err != nil {
				return Manifest{}, nil, err
			}
			haveManifest = true
		case RecordChunk:
			pending = append(pending, record.Value)
		}
	}

	if !haveManifest {
		return Manifest{}, nil, fmt.Errorf("%w: no manifest record", ErrInvalidManifest)
	}

	chk := NewChunker(manifest.Config())
	chunks := make([]Chunk, 0, len(pending))
	for _, value := range pending {
		chunk, err := chk.DecodeChunk(value)
		if err != nil {
			return Manifest{}, nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return manifest, chunks, nil
}
