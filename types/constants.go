package types

const (
	// MerkleTreeDepth is the number of levels of the on-chain commitment tree.
	MerkleTreeDepth = 26
	// NInputs is the number of input notes consumed by every transaction.
	NInputs = 2
	// NOutputs is the number of output notes produced by every transaction.
	NOutputs = 2
	// NPublicSignals is the number of public signals transmitted on-chain:
	// root, publicAmount, extDataHash, two nullifiers and two commitments.
	NPublicSignals = 7
)
