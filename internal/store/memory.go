package store

import (
	"context"
	"sort"
	"sync"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Records are returned by value; callers never share storage with the store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: record id
	records map[string]weather.WeatherRecord

	// secondary indexes; value is the id of the earliest record with that key
	byCity map[string]string
	byZip  map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]weather.WeatherRecord),
		byCity:  make(map[string]string),
		byZip:   make(map[string]string),
	}
}

func (s *MemoryStore) FindByCity(_ context.Context, city string) (weather.WeatherRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byCity, city)
}

func (s *MemoryStore) FindByZipCode(_ context.Context, zip string) (weather.WeatherRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byZip, zip)
}

func (s *MemoryStore) lookup(index map[string]string, key string) (weather.WeatherRecord, error) {
	id, ok := index[key]
	if !ok {
		return weather.WeatherRecord{}, ErrNotFound
	}
	return cloneRecord(s.records[id]), nil
}

// Save inserts the record or overwrites the one with the same id.
func (s *MemoryStore) Save(_ context.Context, record weather.WeatherRecord) (weather.WeatherRecord, error) {
	if err := validateRecord(record); err != nil {
		return weather.WeatherRecord{}, err
	}
	record = cloneRecord(record)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.records[record.ID]; ok {
		// Keep creation time stable across overwrites.
		record.CreatedAt = prev.CreatedAt
		s.unindex(prev)
	}
	s.records[record.ID] = record
	s.index(record)

	return cloneRecord(record), nil
}

// FindAll returns every record ordered by creation time.
func (s *MemoryStore) FindAll(_ context.Context) ([]weather.WeatherRecord, error) {
	s.mu.RLock()
	result := make([]weather.WeatherRecord, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, cloneRecord(rec))
	}
	s.mu.RUnlock()

	sortRecords(result)
	return result, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) index(rec weather.WeatherRecord) {
	if rec.City != nil {
		s.claim(s.byCity, *rec.City, rec)
	}
	if rec.ZipCode != nil {
		s.claim(s.byZip, *rec.ZipCode, rec)
	}
}

// claim points key at rec unless an older record already owns it.
func (s *MemoryStore) claim(index map[string]string, key string, rec weather.WeatherRecord) {
	if owner, ok := index[key]; ok && owner != rec.ID {
		if older, ok := s.records[owner]; ok && !olderThan(rec, older) {
			return
		}
	}
	index[key] = rec.ID
}

func (s *MemoryStore) unindex(rec weather.WeatherRecord) {
	if rec.City != nil {
		s.release(s.byCity, *rec.City, rec.ID, func(r weather.WeatherRecord) *string { return r.City })
	}
	if rec.ZipCode != nil {
		s.release(s.byZip, *rec.ZipCode, rec.ID, func(r weather.WeatherRecord) *string { return r.ZipCode })
	}
}

// release drops id's claim on key and hands the key to the next oldest record sharing it.
func (s *MemoryStore) release(index map[string]string, key, id string, field func(weather.WeatherRecord) *string) {
	if index[key] != id {
		return
	}
	delete(index, key)

	var next *weather.WeatherRecord
	for _, rec := range s.records {
		if rec.ID == id {
			continue
		}
		if v := field(rec); v != nil && *v == key {
			if next == nil || olderThan(rec, *next) {
				r := rec
				next = &r
			}
		}
	}
	if next != nil {
		index[key] = next.ID
	}
}

func olderThan(a, b weather.WeatherRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortRecords(records []weather.WeatherRecord) {
	sort.Slice(records, func(i, j int) bool {
		return olderThan(records[i], records[j])
	})
}

func cloneRecord(rec weather.WeatherRecord) weather.WeatherRecord {
	if rec.City != nil {
		city := *rec.City
		rec.City = &city
	}
	if rec.ZipCode != nil {
		zip := *rec.ZipCode
		rec.ZipCode = &zip
	}
	return rec
}
