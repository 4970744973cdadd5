package txn

import "errors"

var (
	// ErrNoSlot is returned by Begin when every transaction slot is occupied.
	ErrNoSlot = errors.New("txn: no free transaction slot")

	// ErrAborted is returned by any operation on a transaction that has
	// been marked aborted, either by explicit Abort or by deadlock
	// victim selection.
	ErrAborted = errors.New("txn: transaction aborted")

	// ErrWriteSetFull is returned by Put when the transaction's write
	// buffer has reached its configured capacity.
	ErrWriteSetFull = errors.New("txn: write set full")
)
