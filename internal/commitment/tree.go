// Package commitment builds the hash tree that commits a contest to its answer
// key before play and proves single answers against the published root.
//
// Leaves are H(byte(displayOrder) || answer || salt). Nodes are paired left to
// right, smaller digest first, and an odd node at the end of a layer moves up
// unchanged. Because pairing is order independent a proof is just the list of
// sibling digests from leaf to root.
package commitment

import (
	"fmt"
	"sort"

	"contest-settlement/internal/domain"
)

// Proof is the authentication path of one leaf, leaf layer first.
type Proof []domain.Digest

// Tree holds every layer of a built commitment; the last layer is the root.
type Tree struct {
	hasher  Hasher
	layers  [][]domain.Digest
	byOrder map[int]int
}

// Build commits to key with the default hasher.
func Build(key []domain.Question) (*Tree, error) {
	return BuildWith(Default, key)
}

// BuildWith commits to key in the given order.
func BuildWith(h Hasher, key []domain.Question) (*Tree, error) {
	if len(key) == 0 {
		return nil, domain.ErrEmptyAnswerSet
	}

	leaves := make([]domain.Digest, len(key))
	byOrder := make(map[int]int, len(key))
	for i, q := range key {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if _, dup := byOrder[q.DisplayOrder]; dup {
			return nil, fmt.Errorf("%w: duplicate display order %d", domain.ErrInvalidQuestion, q.DisplayOrder)
		}
		byOrder[q.DisplayOrder] = i
		leaves[i] = h.Leaf(q.DisplayOrder, q.CorrectAnswer, q.Salt)
	}

	layers := [][]domain.Digest{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]domain.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, h.Parent(level[i], level[i+1]))
		}
		layers = append(layers, next)
		level = next
	}

	return &Tree{hasher: h, layers: layers, byOrder: byOrder}, nil
}

// Commit builds the tree over key sorted by display order, the canonical
// layout a verifier reconstructs from the revealed key.
func Commit(h Hasher, key []domain.Question) (*Tree, error) {
	ordered := append([]domain.Question(nil), key...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].DisplayOrder < ordered[j].DisplayOrder })
	return BuildWith(h, ordered)
}

func validateQuestion(q domain.Question) error {
	switch {
	case q.CorrectAnswer == "":
		return fmt.Errorf("%w: display order %d has no answer", domain.ErrInvalidQuestion, q.DisplayOrder)
	case q.Salt == "":
		return fmt.Errorf("%w: display order %d has no salt", domain.ErrInvalidQuestion, q.DisplayOrder)
	case q.DisplayOrder < 0 || q.DisplayOrder > 255:
		return fmt.Errorf("%w: display order %d out of range", domain.ErrInvalidQuestion, q.DisplayOrder)
	}
	return nil
}

// Root returns the published commitment.
func (t *Tree) Root() domain.Digest {
	return t.layers[len(t.layers)-1][0]
}

// Hasher returns the hasher the tree was built with.
func (t *Tree) Hasher() Hasher {
	return t.hasher
}

// Leaf returns the leaf digest for displayOrder.
func (t *Tree) Leaf(displayOrder int) (domain.Digest, error) {
	idx, ok := t.byOrder[displayOrder]
	if !ok {
		return domain.Digest{}, fmt.Errorf("%w: display order %d", domain.ErrUnknownQuestion, displayOrder)
	}
	return t.layers[0][idx], nil
}

// Prove returns the sibling path for the leaf with displayOrder.
func (t *Tree) Prove(displayOrder int) (Proof, error) {
	idx, ok := t.byOrder[displayOrder]
	if !ok {
		return nil, fmt.Errorf("%w: display order %d", domain.ErrUnknownQuestion, displayOrder)
	}

	proof := make(Proof, 0, len(t.layers)-1)
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		// a promoted node has no sibling on this layer
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// LeafProof is one committed leaf with its authentication path.
type LeafProof struct {
	DisplayOrder int           `json:"displayOrder"`
	Leaf         domain.Digest `json:"leaf"`
	Proof        Proof         `json:"proof"`
}

// Proofs lists every leaf in tree order with its proof.
func (t *Tree) Proofs() []LeafProof {
	out := make([]LeafProof, len(t.layers[0]))
	for order, idx := range t.byOrder {
		proof, _ := t.Prove(order)
		out[idx] = LeafProof{DisplayOrder: order, Leaf: t.layers[0][idx], Proof: proof}
	}
	return out
}

// LeafOf is the SHA-256 leaf of q.
func LeafOf(q domain.Question) domain.Digest {
	return Default.Leaf(q.DisplayOrder, q.CorrectAnswer, q.Salt)
}

// VerifyRoot checks a SHA-256 proof. It needs no other leaves.
func VerifyRoot(leaf domain.Digest, proof Proof, root domain.Digest) bool {
	return Default.VerifyRoot(leaf, proof, root)
}
