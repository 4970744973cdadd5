package protos

import "lockkv/pkg/txn"

// Session holds one connection's in-progress transaction, if any. A nil
// Txn means the next command runs as its own implicit transaction.
type Session struct {
	tx *txn.Transaction
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) GetTxn() *txn.Transaction {
	return s.tx
}

func (s *Session) SetTxn(tx *txn.Transaction) {
	s.tx = tx
}
