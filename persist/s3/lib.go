// Package s3 stores lww snapshots and update batches as S3 objects.
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/minio/blake2b-simd"
)

// S3Interface is the subset of the S3 client used by Persist.
type S3Interface interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Persist implements the lww.Persist interface for storing and loading
// snapshots as objects.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string
	// Immutable promises that a name is only ever stored with one content,
	// as with names from lww.ContentName. Only then are repeated stores of
	// known content skipped; otherwise another writer may have replaced the
	// object in between, so every Store uploads.
	Immutable bool
	// lru remembers the digest of what was last stored or loaded per name.
	lru *simplelru.LRU
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}
	p.lru.Add(name, blake2b.Sum256(b))
	return b, nil
}

// Store persists the given bytes under name. With Immutable set, a store of
// bytes already known to be under name is skipped.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	sum := blake2b.Sum256(b)
	if p.Immutable {
		if prev, present := p.lru.Get(name); present && prev.([32]byte) == sum {
			return nil
		}
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
		Body:   bytes.NewReader(b),
	}
	_, err := p.s3.PutObjectWithContext(ctx, &input)
	if err != nil {
		p.lru.Remove(name)
		return err
	}
	p.lru.Add(name, sum)
	return nil
}

// NewPersist returns a Persist that loads and stores objects with the given
// S3 client, bucket name and key prefix. Set Immutable on the result when
// every name is content-derived.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	lru, err := simplelru.NewLRU(1000, nil)
	if err != nil {
		panic(err)
	}
	return &Persist{s3: client, BucketName: bucketName, Prefix: prefix, lru: lru}
}
