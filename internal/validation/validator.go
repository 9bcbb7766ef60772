package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nliao6622/QuantaDB-1/internal/errors"
	"github.com/nliao6622/QuantaDB-1/internal/model"
)

const (
	MaxKeySize      = 1024
	MaxValueSize    = 10 * 1024 * 1024
	MaxReadSetSize  = 10000
	MaxWriteSetSize = 10000
	MaxShardSetSize = 1024
)

// Validator validates commit intents at intake time, before they are
// handed to the distributed transaction set for scheduling.
type Validator struct {
	maxKeySize      int
	maxValueSize    int
	maxReadSetSize  int
	maxWriteSetSize int
}

// NewValidator creates a new validator with default limits.
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:      MaxKeySize,
		maxValueSize:    MaxValueSize,
		maxReadSetSize:  MaxReadSetSize,
		maxWriteSetSize: MaxWriteSetSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits.
func NewValidatorWithLimits(maxKeySize, maxValueSize, maxReadSetSize, maxWriteSetSize int) *Validator {
	return &Validator{
		maxKeySize:      maxKeySize,
		maxValueSize:    maxValueSize,
		maxReadSetSize:  maxReadSetSize,
		maxWriteSetSize: maxWriteSetSize,
	}
}

// ValidateCommitIntent validates a CI's shape before it is submitted
// to the validator pipeline.
func (v *Validator) ValidateCommitIntent(tx *model.TxEntry) error {
	if len(tx.ReadSet) > v.maxReadSetSize {
		return errors.InvalidArgument(
			fmt.Sprintf("read set has too many entries: %d > %d", len(tx.ReadSet), v.maxReadSetSize), nil)
	}
	if len(tx.WriteSet) > v.maxWriteSetSize {
		return errors.InvalidArgument(
			fmt.Sprintf("write set has too many entries: %d > %d", len(tx.WriteSet), v.maxWriteSetSize), nil)
	}
	if len(tx.ShardSet) > MaxShardSetSize {
		return errors.InvalidArgument(
			fmt.Sprintf("shard set has too many entries: %d > %d", len(tx.ShardSet), MaxShardSetSize), nil)
	}

	for i, r := range tx.ReadSet {
		if err := v.ValidateKey(string(r.Key)); err != nil {
			return fmt.Errorf("read set entry %d: %w", i, err)
		}
	}
	for i, w := range tx.WriteSet {
		if err := v.ValidateKey(string(w.Key)); err != nil {
			return fmt.Errorf("write set entry %d: %w", i, err)
		}
		if err := v.ValidateValue(w.Value); err != nil {
			return fmt.Errorf("write set entry %d: %w", i, err)
		}
	}

	return nil
}

// ValidateKey validates a key.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key cannot be empty")
	}

	if len(key) > v.maxKeySize {
		return errors.KeyTooLarge(len(key), v.maxKeySize)
	}

	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return errors.InvalidKey(key, "key cannot contain control characters")
		}
	}

	if strings.Contains(key, "\x00") {
		return errors.InvalidKey(key, "key cannot contain null bytes")
	}

	return nil
}

// ValidateValue validates a value.
func (v *Validator) ValidateValue(value []byte) error {
	if value == nil {
		return nil
	}

	if len(value) > v.maxValueSize {
		return errors.ValueTooLarge(len(value), v.maxValueSize)
	}

	return nil
}

// SanitizeKey sanitizes a key by removing dangerous characters.
func SanitizeKey(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == 0 || (unicode.IsControl(r) && r != '\t' && r != '\n') {
			return -1
		}
		return r
	}, key)

	sanitized = strings.TrimSpace(sanitized)

	if len(sanitized) > MaxKeySize {
		sanitized = sanitized[:MaxKeySize]
	}

	return sanitized
}

// EstimateWriteSize estimates the TxLog disk space needed to append a
// CI's record. Nothing in this repository calls it; TxLog gates its
// appends on the actual encoded frame size.
func EstimateWriteSize(tx *model.TxEntry) uint64 {
	var total int
	for _, w := range tx.WriteSet {
		total += len(w.Key) + len(w.Value) + 64
	}
	for _, r := range tx.ReadSet {
		total += len(r.Key) + 48
	}
	total += len(tx.ShardSet)*8 + 64

	return uint64(total) + uint64(total)/5
}
