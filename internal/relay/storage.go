package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ================================================================================
// STORAGE BACKEND FOR THE CARRIER RELAY
// ================================================================================

var (
	ErrNotFound = errors.New("relay: not found")
	ErrExists   = errors.New("relay: message already exists")
)

// Message is a published carrier: its manifest and encoded chunks
type Message struct {
	ID          string         `json:"id"`
	Manifest    string         `json:"manifest"`
	Chunks      map[int]string `json:"chunks,omitempty"` // sequence -> encoded chunk
	TotalChunks int            `json:"total_chunks"`
	CreatedAt   time.Time      `json:"created_at"`
	State       MessageState   `json:"state"`
	Fetches     int            `json:"fetches"` // manifest lookups
}

// MessageState tracks lifecycle
type MessageState int

const (
	StateNew       MessageState = iota // Just uploaded, never fetched
	StateDelivered                     // Manifest fetched at least once
)

func (s MessageState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDelivered:
		return "DELIVERED"
	}
	return "UNKNOWN"
}

// Storage holds published carriers. Implementations must be safe for
// concurrent use; the DNS server calls them from many goroutines.
type Storage interface {
	StoreMessage(ctx context.Context, msg *Message) error
	GetManifest(ctx context.Context, id string) (string, error)
	GetChunk(ctx context.Context, id string, seq int) (string, error)
	MarkAsDelivered(ctx context.Context, id string) error

	// ListMessages returns every message without chunk bodies, oldest first.
	ListMessages(ctx context.Context) ([]*Message, error)
	CleanExpired(ctx context.Context, ttl time.Duration) (int, error)
	GetStats(ctx context.Context) (StorageStats, error)
}

// StorageStats provides metrics
type StorageStats struct {
	TotalMessages int `json:"total_messages"`
	NewMessages   int `json:"new_messages"`
	Delivered     int `json:"delivered"`
	TotalChunks   int `json:"total_chunks"`
}

func statsOf(messages []*Message) StorageStats {
	var stats StorageStats
	for _, m := range messages {
		stats.TotalMessages++
		stats.TotalChunks += m.TotalChunks
		if m.State == StateNew {
			stats.NewMessages++
		} else {
			stats.Delivered++
		}
	}
	return stats
}

func sortByAge(messages []*Message) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// ================================================================================
// IN-MEMORY STORAGE
// ================================================================================

// MemoryStorage keeps everything in RAM
type MemoryStorage struct {
	messages map[string]*Message
	mu       sync.RWMutex
}

// NewMemoryStorage creates in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*Message),
	}
}

// StoreMessage adds a new message. CreatedAt is set to now when zero.
func (ms *MemoryStorage) StoreMessage(_ context.Context, msg *Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[msg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, msg.ID)
	}

	stored := *msg
	stored.Chunks = make(map[int]string, len(msg.Chunks))
	for seq, value := range msg.Chunks {
		stored.Chunks[seq] = value
	}
	stored.State = StateNew
	stored.Fetches = 0
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	ms.messages[msg.ID] = &stored

	return nil
}

// GetManifest returns the manifest TXT value of a message
func (ms *MemoryStorage) GetManifest(_ context.Context, id string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return "", fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return msg.Manifest, nil
}

// GetChunk retrieves a specific chunk
func (ms *MemoryStorage) GetChunk(_ context.Context, id string, seq int) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return "", fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	data, exists := msg.Chunks[seq]
	if !exists {
		return "", fmt.Errorf("%w: chunk %d of %s", ErrNotFound, seq, id)
	}
	return data, nil
}

// MarkAsDelivered records a manifest lookup
func (ms *MemoryStorage) MarkAsDelivered(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[id]
	if !exists {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	msg.State = StateDelivered
	msg.Fetches++
	return nil
}

// ListMessages returns all messages without chunk bodies
func (ms *MemoryStorage) ListMessages(_ context.Context) ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	messages := make([]*Message, 0, len(ms.messages))
	for _, msg := range ms.messages {
		summary := *msg
		summary.Chunks = nil
		messages = append(messages, &summary)
	}
	sortByAge(messages)
	return messages, nil
}

// CleanExpired removes messages older than ttl
func (ms *MemoryStorage) CleanExpired(_ context.Context, ttl time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, msg := range ms.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(ms.messages, id)
			removed++
		}
	}
	return removed, nil
}

// GetStats returns storage statistics
func (ms *MemoryStorage) GetStats(ctx context.Context) (StorageStats, error) {
	messages, err := ms.ListMessages(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	return statsOf(messages), nil
}
