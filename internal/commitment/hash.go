package commitment

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"

	"contest-settlement/internal/domain"
	"github.com/decred/dcrd/crypto/blake256"
)

// HashKind names the digest function a tree was committed with.
type HashKind string

const (
	SHA256   HashKind = "sha256"
	BLAKE256 HashKind = "blake256"
)

// Hasher computes leaves and parents with one 256-bit digest function.
type Hasher struct {
	kind    HashKind
	newHash func() hash.Hash
}

// NewHasher returns the hasher for kind; the empty kind means SHA256.
func NewHasher(kind HashKind) (Hasher, error) {
	switch kind {
	case "", SHA256:
		return Hasher{kind: SHA256, newHash: sha256.New}, nil
	case BLAKE256:
		return Hasher{kind: BLAKE256, newHash: func() hash.Hash { return blake256.New() }}, nil
	default:
		return Hasher{}, fmt.Errorf("unknown hash kind %q", kind)
	}
}

// Default is the SHA-256 hasher.
var Default, _ = NewHasher(SHA256)

func (h Hasher) Kind() HashKind {
	return h.kind
}

// Leaf hashes byte(displayOrder) || answer || salt.
func (h Hasher) Leaf(displayOrder int, answer, salt string) domain.Digest {
	w := h.newHash()
	w.Write([]byte{byte(displayOrder)})
	w.Write([]byte(answer))
	w.Write([]byte(salt))
	return sum(w)
}

// Parent hashes the two children smaller-first, so position does not matter.
func (h Hasher) Parent(a, b domain.Digest) domain.Digest {
	w := h.newHash()
	if bytes.Compare(a[:], b[:]) <= 0 {
		w.Write(a[:])
		w.Write(b[:])
	} else {
		w.Write(b[:])
		w.Write(a[:])
	}
	return sum(w)
}

// VerifyRoot folds proof onto leaf and compares the result with root.
func (h Hasher) VerifyRoot(leaf domain.Digest, proof Proof, root domain.Digest) bool {
	current := leaf
	for _, sibling := range proof {
		current = h.Parent(current, sibling)
	}
	return current == root
}

func sum(w hash.Hash) domain.Digest {
	var d domain.Digest
	copy(d[:], w.Sum(nil))
	return d
}
