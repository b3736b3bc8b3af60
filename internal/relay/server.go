package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/faanross/stegocrypt/internal/chunker"
	"github.com/miekg/dns"
)

const (
	// Per-query storage deadline
	lookupTimeout = 2 * time.Second

	// Room for a full 65535-chunk message in JSON
	maxUploadBytes = 32 << 20
)

// Server answers TXT queries for published carriers and accepts uploads
// over HTTP.
//
//	m-<id>.<domain>        manifest
//	c-<seq>-<id>.<domain>  chunk
type Server struct {
	domain  string
	storage Storage
	ttl     uint32

	served atomic.Int64
	missed atomic.Int64

	// Logger receives one line per served or failed query when non-nil.
	Logger *log.Logger

	// MaxUploadBytes caps the body of POST /upload.
	MaxUploadBytes int64
}

// NewServer creates a relay for domain backed by storage
func NewServer(domain string, storage Storage) *Server {
	return &Server{
		domain:  strings.ToLower(strings.TrimSuffix(domain, ".")),
		storage: storage,
		ttl:     chunker.DEFAULT_TTL,

		MaxUploadBytes: maxUploadBytes,
	}
}

// Domain returns the zone the server answers for
func (s *Server) Domain() string { return s.domain }

// Storage returns the backing store
func (s *Server) Storage() Storage { return s.storage }

// ServeDNS implements dns.Handler
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	client := clientHost(w.RemoteAddr())
	for _, question := range r.Question {
		if question.Qtype != dns.TypeTXT {
			continue
		}
		rr, err := s.lookup(ctx, question.Name)
		if err != nil {
			s.missed.Add(1)
			s.logf("Miss %s from %s: %v", question.Name, client, err)
			if errors.Is(err, ErrNotFound) || errors.Is(err, chunker.ErrInvalidName) {
				msg.Rcode = dns.RcodeNameError
			} else {
				msg.Rcode = dns.RcodeServerFailure
			}
			continue
		}
		msg.Answer = append(msg.Answer, rr)
		s.served.Add(1)
		s.logf("Served %s to %s", question.Name, client)
	}

	if err := w.WriteMsg(msg); err != nil {
		s.logf("Write to %s failed: %v", w.RemoteAddr(), err)
	}
}

func (s *Server) lookup(ctx context.Context, qname string) (dns.RR, error) {
	name, err := chunker.ParseRecordName(qname, s.domain)
	if err != nil {
		return nil, err
	}

	var value string
	switch name.Kind {
	case chunker.RecordManifest:
		value, err = s.storage.GetManifest(ctx, name.MessageID)
		if err == nil {
			err = s.storage.MarkAsDelivered(ctx, name.MessageID)
		}
	case chunker.RecordChunk:
		value, err = s.storage.GetChunk(ctx, name.MessageID, name.Sequence)
	}
	if err != nil {
		return nil, err
	}

	record := chunker.DNSRecord{Name: dns.Fqdn(strings.ToLower(qname)), TTL: s.ttl, Value: value}
	return record.TXT(), nil
}

// Publish stores a chunked carrier
func (s *Server) Publish(ctx context.Context, msg *chunker.Message) error {
	chunks := make(map[int]string, len(msg.Chunks))
	for _, c := range msg.Chunks {
		chunks[int(c.Metadata.Sequence)] = c.Encoded
	}
	return s.store(ctx, msg.Manifest.MessageID, msg.Manifest.String(), chunks)
}

// PublishRecords stores the message described by a set of zone records,
// as produced by chunker.DNSEncoder. It returns the message ID.
func (s *Server) PublishRecords(ctx context.Context, records []chunker.DNSRecord) (string, error) {
	var id, manifest string
	chunks := make(map[int]string)

	for _, record := range records {
		name, err := chunker.ParseRecordName(record.Name, s.domain)
		if err != nil {
			continue
		}
		if id != "" && name.MessageID != id {
			return "", fmt.Errorf("%w: records for more than one message", chunker.ErrInvalidManifest)
		}
		id = name.MessageID

		switch name.Kind {
		case chunker.RecordManifest:
			manifest = record.Value
		case chunker.RecordChunk:
			chunks[name.Sequence] = record.Value
		}
	}

	if manifest == "" {
		return "", fmt.Errorf("%w: no manifest record for %s", chunker.ErrInvalidManifest, s.domain)
	}
	return id, s.store(ctx, id, manifest, chunks)
}

func (s *Server) store(ctx context.Context, id, manifest string, chunks map[int]string) error {
	if len(manifest) > chunker.MAX_DNS_STRING_SIZE {
		return fmt.Errorf("%w: %d characters", chunker.ErrInvalidManifest, len(manifest))
	}
	m, err := chunker.ParseManifest(id, manifest)
	if err != nil {
		return err
	}
	for seq, value := range chunks {
		if seq < 0 || seq >= m.TotalChunks {
			return fmt.Errorf("%w: sequence %d out of bounds (total: %d)", chunker.ErrInvalidChunk, seq, m.TotalChunks)
		}
		if len(value) > chunker.MAX_DNS_STRING_SIZE {
			return fmt.Errorf("%w: chunk %d is %d characters (max %d)",
				chunker.ErrInvalidChunk, seq, len(value), chunker.MAX_DNS_STRING_SIZE)
		}
	}

	return s.storage.StoreMessage(ctx, &Message{
		ID:          m.MessageID,
		Manifest:    manifest,
		Chunks:      chunks,
		TotalChunks: m.TotalChunks,
		CreatedAt:   time.Now(),
	})
}

// UploadRequest is the body of POST /upload
type UploadRequest struct {
	MessageID string         `json:"message_id"`
	Manifest  string         `json:"manifest"`
	Chunks    map[int]string `json:"chunks"`
}

// UploadResponse is returned by POST /upload
type UploadResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Chunks    int    `json:"chunks"`
}

// Status is returned by GET /status
type Status struct {
	Domain   string       `json:"domain"`
	Storage  StorageStats `json:"storage"`
	Served   int64        `json:"served"`
	Missed   int64        `json:"missed"`
	Messages []*Message   `json:"messages"`
}

// Status reports storage and query counters
func (s *Server) Status(ctx context.Context) (Status, error) {
	messages, err := s.storage.ListMessages(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Domain:   s.domain,
		Storage:  statsOf(messages),
		Served:   s.served.Load(),
		Missed:   s.missed.Load(),
		Messages: messages,
	}, nil
}

// HTTPHandler serves POST /upload and GET /status
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleHTTPUpload)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleHTTPUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.store(r.Context(), strings.ToLower(req.MessageID), req.Manifest, req.Chunks)
	switch {
	case errors.Is(err, ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, chunker.ErrInvalidManifest), errors.Is(err, chunker.ErrInvalidChunk):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logf("✅ Uploaded message %s via HTTP (%d chunks)", req.MessageID, len(req.Chunks))

	writeJSON(w, UploadResponse{
		Status:    "success",
		MessageID: strings.ToLower(req.MessageID),
		Chunks:    len(req.Chunks),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logf(format string, a ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, a...)
	}
}

// clientHost strips the port from a resolver address
func clientHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
