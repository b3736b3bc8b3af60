package chunker

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// stripeCodec wraps a Reed-Solomon encoder for one stripe shape
type stripeCodec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

func newStripeCodec(dataShards, parityShards int) (*stripeCodec, error) {
	if dataShards <= 0 || parityShards <= 0 || dataShards+parityShards > MAX_SHARDS {
		return nil, fmt.Errorf("%w: data=%d parity=%d", ErrInvalidConfig, dataShards, parityShards)
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &stripeCodec{
		enc:          enc,
		dataShards:   dataShards,
		parityShards: parityShards,
	}, nil
}

// codec returns a cached codec. Only the last stripe of a message can be
// narrower than StripeWidth, so the cache stays small.
func (c *Chunker) codec(dataShards, parityShards int) (*stripeCodec, error) {
	key := dataShards<<16 | parityShards
	if sc, ok := c.codecs[key]; ok {
		return sc, nil
	}
	sc, err := newStripeCodec(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	c.codecs[key] = sc
	return sc, nil
}

// encodeStripe computes parity shards for the given data shards
func (c *Chunker) encodeStripe(data [][]byte, shardSize int) ([][]byte, error) {
	sc, err := c.codec(len(data), c.config.Parity)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, sc.dataShards+sc.parityShards)
	copy(shards, data)
	for i := sc.dataShards; i < len(shards); i++ {
		shards[i] = make([]byte, shardSize)
	}

	if err := sc.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards[sc.dataShards:], nil
}

// reconstructStripe fills nil data shards in place. Parity shards are
// not rebuilt.
func (c *Chunker) reconstructStripe(shards [][]byte, dataShards, parityShards int) error {
	sc, err := c.codec(dataShards, parityShards)
	if err != nil {
		return err
	}

	if err := sc.enc.ReconstructData(shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return ErrIncomplete
		}
		return err
	}
	return nil
}
