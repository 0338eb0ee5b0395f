package protocol

import "fmt"

// ShardID identifies one partition of the event stream. It is immutable
// once assigned.
type ShardID struct {
	Index uint64
	Total uint64
}

// NewShardID validates and returns a shard id.
func NewShardID(index, total uint64) (ShardID, error) {
	id := ShardID{Index: index, Total: total}
	return id, id.Validate()
}

// Validate checks that the index is below the total.
func (s ShardID) Validate() error {
	if s.Total == 0 || s.Index >= s.Total {
		return fmt.Errorf("%w: shard %d is not below total %d", ErrInvalidShard, s.Index, s.Total)
	}
	return nil
}

// Array returns the [index, total] pair sent in Identify.
func (s ShardID) Array() *[2]uint64 {
	return &[2]uint64{s.Index, s.Total}
}

// Bucket returns the identify rate-limit bucket for the given concurrency.
func (s ShardID) Bucket(concurrency uint64) uint64 {
	if concurrency == 0 {
		return 0
	}
	return s.Index % concurrency
}

// String returns "index/total".
func (s ShardID) String() string {
	return fmt.Sprintf("%d/%d", s.Index, s.Total)
}

// ShardFor returns the shard index responsible for a snowflake routing key
// such as a guild id.
func ShardFor(routingKey uint64, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	return (routingKey >> 22) % total
}
