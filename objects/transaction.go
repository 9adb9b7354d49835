package objects

import (
	"fmt"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/crypto"
)

// MaxInputs, MaxOutputs and MaxSignatures bound a transaction's
// single-byte count fields to the original reference's TX_COUNT ceiling.
const (
	MaxInputs     = 255
	MaxOutputs    = 255
	MaxSignatures = 255

	// MaxSeq is the largest output index a transaction may reference, one
	// less than the single byte field's range so an index never collides
	// with MaxOutputs itself.
	MaxSeq = 254
)

// Input identifies a spent coin by the transaction that created it and
// its position among that transaction's outputs.
type Input struct {
	TxID common.Hash
	Seq  uint8
}

// Bytes returns the input's wire form: the 32-byte transaction ID
// followed by the 1-byte output index.
func (in Input) Bytes() []byte {
	buf := make([]byte, 0, common.HashSize+1)
	buf = append(buf, in.TxID.Bytes()...)
	return append(buf, in.Seq)
}

// Transaction spends a set of existing coins (its Inputs, each identified
// by a (transaction ID, output index) pair) and creates a new set of
// Coins (its Outputs). Signatures are associated with distinct input
// OWNERS rather than positionally with each input: an owner supplying
// several inputs only needs to sign once, so len(Signatures) may be less
// than len(Inputs), but never more.
type Transaction struct {
	Inputs     []Input
	Outputs    []*Coin
	Signatures [][]byte // crypto.SignatureSize bytes each
}

// ID is the transaction's identity: the hash of its signing payload,
// inputs and outputs but not signatures, so re-signing a transaction with
// a different valid signature set never changes the coins it spends or
// creates.
func (t *Transaction) ID() common.Hash {
	return crypto.Hash(t.SigningPayload())
}

// SigningPayload is what every entry in Signatures covers: every input
// followed by every output, in order.
func (t *Transaction) SigningPayload() []byte {
	buf := make([]byte, 0, len(t.Inputs)*(common.HashSize+1)+len(t.Outputs)*(crypto.PublicKeySize+4))
	for _, in := range t.Inputs {
		buf = append(buf, in.Bytes()...)
	}
	for _, out := range t.Outputs {
		buf = out.Encode(buf)
	}
	return buf
}

// AddSignature appends sig, the one signature an additional distinct
// input owner contributes. Refuses to grow Signatures past one entry per
// input, even though in practice a single signature may cover several
// inputs that share an owner.
func (t *Transaction) AddSignature(sig []byte) error {
	if len(t.Signatures) >= len(t.Inputs) {
		return fmt.Errorf("objects: transaction already carries one signature per input")
	}
	t.Signatures = append(t.Signatures, sig)
	return nil
}

// Sign signs the transaction's payload with priv and appends the result
// to Signatures, a convenience wrapper around AddSignature.
func (t *Transaction) Sign(priv *crypto.PrivateKey) error {
	sig, err := crypto.Sign(priv, t.SigningPayload())
	if err != nil {
		return err
	}
	return t.AddSignature(sig)
}

// TotalOutput sums the value of every output coin.
func (t *Transaction) TotalOutput() uint64 {
	var total uint64
	for _, out := range t.Outputs {
		total += out.Value
	}
	return total
}

// Encode appends the wire form of t to buf: input count, output count,
// signature count, then every input, every output and every signature in
// turn. Every field is fixed-width or counted up front, so none of them
// carries its own length prefix.
func (t *Transaction) Encode(buf []byte) []byte {
	if len(t.Inputs) > MaxInputs || len(t.Outputs) > MaxOutputs || len(t.Signatures) > MaxSignatures {
		panic("objects: transaction exceeds wire limits")
	}
	if len(t.Signatures) > len(t.Inputs) {
		panic("objects: transaction has more signatures than inputs")
	}
	buf = append(buf, byte(len(t.Inputs)), byte(len(t.Outputs)), byte(len(t.Signatures)))
	for _, in := range t.Inputs {
		buf = append(buf, in.Bytes()...)
	}
	for _, out := range t.Outputs {
		buf = out.Encode(buf)
	}
	for _, sig := range t.Signatures {
		if len(sig) != crypto.SignatureSize {
			panic("objects: signature has wrong size")
		}
		buf = append(buf, sig...)
	}
	return buf
}

// DecodeTransaction reads a Transaction from the front of b, returning
// the remaining bytes.
func DecodeTransaction(b []byte) (*Transaction, []byte, error) {
	if len(b) < 3 {
		return nil, nil, fmt.Errorf("objects: short buffer decoding transaction counts")
	}
	inCount, outCount, sigCount := int(b[0]), int(b[1]), int(b[2])
	b = b[3:]
	if sigCount > inCount {
		return nil, nil, fmt.Errorf("objects: signature count %d exceeds input count %d", sigCount, inCount)
	}

	t := &Transaction{}
	for i := 0; i < inCount; i++ {
		if len(b) < common.HashSize+1 {
			return nil, nil, fmt.Errorf("objects: short buffer decoding input %d", i)
		}
		txID := common.BytesToHash(b[:common.HashSize])
		b = b[common.HashSize:]
		seq := b[0]
		b = b[1:]
		if seq > MaxSeq {
			return nil, nil, fmt.Errorf("objects: input %d seq %d exceeds MaxSeq", i, seq)
		}
		t.Inputs = append(t.Inputs, Input{TxID: txID, Seq: seq})
	}
	for i := 0; i < outCount; i++ {
		out, rest, err := DecodeCoin(b)
		if err != nil {
			return nil, nil, fmt.Errorf("objects: decoding output %d: %w", i, err)
		}
		b = rest
		t.Outputs = append(t.Outputs, out)
	}
	for i := 0; i < sigCount; i++ {
		if len(b) < crypto.SignatureSize {
			return nil, nil, fmt.Errorf("objects: short buffer decoding signature %d", i)
		}
		sig := append([]byte(nil), b[:crypto.SignatureSize]...)
		b = b[crypto.SignatureSize:]
		t.Signatures = append(t.Signatures, sig)
	}
	return t, b, nil
}
