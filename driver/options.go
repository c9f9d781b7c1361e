package driver

import (
	gocql "github.com/apache/cassandra-gocql-driver/v2"
)

// ReadOptions carries per-read execution options. A nil field means use the
// client default.
type ReadOptions struct {
	Consistency *gocql.Consistency
	RetryPolicy gocql.RetryPolicy
}

// WriteOptions carries per-write execution options. TTL is the write expiry
// in seconds and Timestamp the write timestamp override in microseconds;
// zero leaves the store default in place.
type WriteOptions struct {
	Consistency *gocql.Consistency
	RetryPolicy gocql.RetryPolicy
	TTL         int
	Timestamp   int64
}

// BatchOptions carries execution options applied to a whole batch.
type BatchOptions struct {
	Consistency *gocql.Consistency
	RetryPolicy gocql.RetryPolicy
}

// ConsistencyPtr is a convenience for building options literals.
func ConsistencyPtr(c gocql.Consistency) *gocql.Consistency {
	return &c
}

func (o *ReadOptions) apply(s *Statement) {
	if o == nil {
		return
	}
	s.Consistency = o.Consistency
	s.RetryPolicy = o.RetryPolicy
}

func (o *WriteOptions) apply(s *Statement) {
	if o == nil {
		return
	}
	s.Consistency = o.Consistency
	s.RetryPolicy = o.RetryPolicy
}

// ApplyRead copies read options onto a statement.
func ApplyRead(s *Statement, o *ReadOptions) { o.apply(s) }

// ApplyWrite copies write options onto a statement. TTL and Timestamp are
// handled by the statement builder since they are part of the CQL text.
func ApplyWrite(s *Statement, o *WriteOptions) { o.apply(s) }
