package core

import (
	"context"
	"sync"

	"hcsrelay/internal/models"
	"hcsrelay/storage/store"

	log "github.com/sirupsen/logrus"
)

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

// memStore is an in-memory store.Store
type memStore struct {
	mu      sync.Mutex
	records map[string]*store.SubmissionRecord
	batches int
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*store.SubmissionRecord)}
}

func (s *memStore) RecordSubmission(ctx context.Context, rec *store.SubmissionRecord) error {
	return s.RecordSubmissionBatch(ctx, []*store.SubmissionRecord{rec})
}

func (s *memStore) RecordSubmissionBatch(_ context.Context, recs []*store.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches++
	for _, rec := range recs {
		if _, ok := s.records[rec.TransactionID]; !ok {
			s.records[rec.TransactionID] = rec
		}
	}
	return nil
}

func (s *memStore) GetSubmission(_ context.Context, id string) (*store.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Close() {}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// memProducer records everything published
type memProducer struct {
	mu   sync.Mutex
	msgs []models.Message
	err  error
}

func (p *memProducer) Publish(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *memProducer) PublishBatch(ctx context.Context, msgs []models.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *memProducer) Close() error { return nil }

func (p *memProducer) published() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Message(nil), p.msgs...)
}
