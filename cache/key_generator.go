package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// KeySeparator separates the operation from its concatenated arguments.
	KeySeparator = "_"

	// DelimitedKeySeparator separates every segment of a delimited key.
	DelimitedKeySeparator = "::"
)

// Key strategies understood by NewKeyGenerator.
const (
	KeyStrategyConcat    = "concat"
	KeyStrategyDelimited = "delimited"
	KeyStrategyHashed    = "hashed"
)

var defaultKeyGenerator = NewConcatKeyGenerator()

// GenerateKey derives a cache key from an operation name and its arguments
// using the concat strategy:
//
//	GenerateKey("listAll")               // "listAll"
//	GenerateKey("findUser", 42, "active") // "findUser_42active"
//
// Arguments are concatenated without a separator, so ("ab","c") and ("a","bc")
// share a key. Use NewDelimitedKeyGenerator or NewHashedKeyGenerator when that
// matters.
func GenerateKey(operation string, args ...any) (string, error) {
	return defaultKeyGenerator.GenerateKey(operation, args...)
}

// KeyGeneratorFunc adapts a function to the KeyGenerator interface.
type KeyGeneratorFunc func(operation string, args ...any) (string, error)

// GenerateKey calls f(operation, args...).
func (f KeyGeneratorFunc) GenerateKey(operation string, args ...any) (string, error) {
	return f(operation, args...)
}

// NewKeyGenerator returns the generator registered under strategy.
// An empty strategy selects concat.
func NewKeyGenerator(strategy string) (KeyGenerator, error) {
	switch strategy {
	case "", KeyStrategyConcat:
		return NewConcatKeyGenerator(), nil
	case KeyStrategyDelimited:
		return NewDelimitedKeyGenerator(), nil
	case KeyStrategyHashed:
		return NewHashedKeyGenerator(nil), nil
	default:
		return nil, fmt.Errorf("unknown key strategy %q", strategy)
	}
}

type concatKeyGenerator struct {
	values valueSerializer
}

// NewConcatKeyGenerator creates the generator behind GenerateKey.
func NewConcatKeyGenerator() KeyGenerator {
	return &concatKeyGenerator{values: valueSerializer{format: plainFormat}}
}

func (g *concatKeyGenerator) GenerateKey(operation string, args ...any) (string, error) {
	if len(args) == 0 {
		return operation, nil
	}

	var b strings.Builder
	b.WriteString(operation)
	b.WriteString(KeySeparator)

	for i, arg := range args {
		part, fault := g.values.serialize(arg)
		if fault != nil {
			return "", fault.toError(operation, i)
		}
		b.WriteString(part)
	}

	return b.String(), nil
}

// delimitedKeyGenerator keeps every argument in its own segment and tags
// composites with kind and length, so distinct argument lists never collapse
// into the same key.
type delimitedKeyGenerator struct {
	values valueSerializer
}

// NewDelimitedKeyGenerator creates a generator producing keys such as
// "GetByIDs::slice[2]:{1,2}::true".
func NewDelimitedKeyGenerator() KeyGenerator {
	return &delimitedKeyGenerator{values: valueSerializer{format: taggedFormat}}
}

func (g *delimitedKeyGenerator) GenerateKey(operation string, args ...any) (string, error) {
	if len(args) == 0 {
		return operation, nil
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, operation)

	for i, arg := range args {
		part, fault := g.values.serialize(arg)
		if fault != nil {
			return "", fault.toError(operation, i)
		}
		parts = append(parts, part)
	}

	return strings.Join(parts, DelimitedKeySeparator), nil
}

type hashedKeyGenerator struct {
	inner KeyGenerator
}

// NewHashedKeyGenerator creates a generator producing "<operation>_<xxhash64>"
// where the digest covers the key built by inner. A nil inner uses the
// delimited generator. The operation stays readable so keys can still be
// grouped per operation.
func NewHashedKeyGenerator(inner KeyGenerator) KeyGenerator {
	if inner == nil {
		inner = NewDelimitedKeyGenerator()
	}
	return &hashedKeyGenerator{inner: inner}
}

func (g *hashedKeyGenerator) GenerateKey(operation string, args ...any) (string, error) {
	if len(args) == 0 {
		return operation, nil
	}

	full, err := g.inner.GenerateKey(operation, args...)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%s%016x", operation, KeySeparator, xxhash.Sum64String(full)), nil
}
