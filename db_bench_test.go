package objdb

import (
	"fmt"
	"testing"
)

const (
	benchValueSize  = 1024
	benchNumRecords = 10000
)

var benchBackends = []string{"bolt", "pebble", "badger", "memory"}

func benchDB(b *testing.B, name string) *DB {
	b.Helper()

	path := ""
	switch name {
	case "bolt":
		path = b.TempDir() + "/bench.bolt"
	case "pebble", "badger":
		path = b.TempDir()
	}

	db, err := Open(path, WithBackend(name), WithSyncOff())
	if err != nil {
		b.Fatalf("Failed to create DB: %v", err)
	}
	b.Cleanup(func() { db.Close() })
	return db
}

func populate(b *testing.B, db *DB) {
	b.Helper()

	value := make([]byte, benchValueSize)
	err := db.Update(func(s *Session) error {
		for i := 0; i < benchNumRecords; i++ {
			if err := s.Put([]byte(fmt.Sprintf("key-%020d", i)), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatalf("Failed to populate DB: %v", err)
	}
}

func BenchmarkSequentialWrite(b *testing.B) {
	for _, name := range benchBackends {
		b.Run(name, func(b *testing.B) {
			db := benchDB(b, name)
			value := make([]byte, benchValueSize)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				key := []byte(fmt.Sprintf("key-%020d", i))
				if err := db.Put(key, value); err != nil {
					b.Errorf("Put failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkChangesetPut(b *testing.B) {
	db := benchDB(b, "memory")
	s, err := db.Begin(true)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	value := make([]byte, 128)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key-%020d", i))
		if err := s.Put(key, value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func BenchmarkMergedScan(b *testing.B) {
	for _, name := range benchBackends {
		b.Run(name, func(b *testing.B) {
			db := benchDB(b, name)
			populate(b, db)

			s, err := db.Begin(true)
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()

			// every third key overridden, every seventh deleted
			for i := 0; i < benchNumRecords; i += 3 {
				if err := s.Put([]byte(fmt.Sprintf("key-%020d", i)), []byte("delta")); err != nil {
					b.Fatal(err)
				}
			}
			for i := 0; i < benchNumRecords; i += 7 {
				if err := s.Delete([]byte(fmt.Sprintf("key-%020d", i))); err != nil {
					b.Fatal(err)
				}
			}
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				n := 0
				if err := s.ForEach(func(_, _ []byte) error {
					n++
					return nil
				}); err != nil {
					b.Fatal(err)
				}
				if n == 0 {
					b.Fatal("empty scan")
				}
			}
		})
	}
}

func BenchmarkRandomRead(b *testing.B) {
	for _, name := range benchBackends {
		b.Run(name, func(b *testing.B) {
			db := benchDB(b, name)
			populate(b, db)

			s, err := db.Begin(false)
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				key := []byte(fmt.Sprintf("key-%020d", (i*7)%benchNumRecords))
				if _, err := s.Get(key); err != nil {
					b.Errorf("Get failed: %v", err)
				}
			}
		})
	}
}
