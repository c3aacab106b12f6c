package sslctx

import (
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/cockroachdb/errors"
)

// DHParams is a classic Diffie-Hellman parameter set: a safe prime modulus
// and a generator. It exists for parity with spec.md's "DH parameter cache"
// invariant; crypto/tls (Go's TLS stack) has no hook for static DHE cipher
// suites, so nothing in this module actually consumes it — see
// DESIGN.md's standard-library-only justification for dhcache.go.
type DHParams struct {
	Bits      int
	Prime     *big.Int
	Generator *big.Int
}

// dhCache lazily builds and caches one DHParams per requested bit length,
// filled on first request, per spec.md §3's "ordered list of
// (keylength, parameters, generator) with at least 1024, 2048, 4096 slots,
// filled on first request per length".
type dhCache struct {
	mu     sync.Mutex
	byBits map[int]*DHParams
}

func newDHCache() *dhCache {
	return &dhCache{byBits: make(map[int]*DHParams)}
}

// Get returns the DHParams for bits, generating and caching it on first
// request. 1024 uses the fixed RFC 2409 Oakley group 2 prime (the same
// constant OpenSSH and most TLS stacks ship, rather than a freshly
// generated one); every other bit length, including the 2048 and 4096
// slots spec.md requires, is generated on demand as a safe prime — this
// package does not ship a fixed 2048-bit modulus, so there is no RFC 3526
// conformance to get wrong. A failure to generate is treated as fatal by
// callers, per spec.md §5 ("a failure to generate is fatal").
func (c *dhCache) Get(bits int) (*DHParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.byBits[bits]; ok {
		return p, nil
	}

	var p *DHParams
	if hexPrime, ok := modpGroups[bits]; ok {
		prime, ok := new(big.Int).SetString(hexPrime, 16)
		if !ok {
			return nil, errors.Errorf("sslctx: malformed built-in DH prime for %d-bit keys", bits)
		}
		p = &DHParams{Bits: bits, Prime: prime, Generator: big.NewInt(2)}
	} else {
		prime, err := generateSafePrime(bits)
		if err != nil {
			return nil, errors.Wrapf(err, "generate %d-bit DH parameters", bits)
		}
		p = &DHParams{Bits: bits, Prime: prime, Generator: big.NewInt(2)}
	}

	c.byBits[bits] = p
	return p, nil
}

// generateSafePrime returns a random safe prime p (p = 2q+1, q prime) of
// the given bit length, using the stdlib's Miller-Rabin-backed
// ProbablyPrime. There is no third-party primality/DH-parameter generator
// in the example pack's dependency closure; math/big/crypto/rand is the
// standard, and only, idiomatic way to do this in Go.
func generateSafePrime(bits int) (*big.Int, error) {
	for {
		q, err := rand.Prime(rand.Reader, bits-1)
		if err != nil {
			return nil, err
		}
		p := new(big.Int).Lsh(q, 1)
		p.Add(p, big.NewInt(1))
		if p.ProbablyPrime(20) {
			return p, nil
		}
	}
}

// modpGroups holds the fixed safe-prime modulus from RFC 2409 (Oakley
// group 2, 1024-bit), keyed by bit length.
var modpGroups = map[int]string{
	1024: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E0" +
		"88A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43" +
		"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C4" +
		"2E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B" +
		"1FE649286651ECE65381FFFFFFFFFFFFFFFF",
}
