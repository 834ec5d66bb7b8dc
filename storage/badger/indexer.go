package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v2"
	"github.com/golang/geo/s2"

	"github.com/akhenakh/sensorbridge/storage"
)

const maxCoverCells = 8

type Indexer struct {
	*badger.DB
}

func NewIndexer(db *badger.DB) *Indexer {
	return &Indexer{DB: db}
}

// Store adds r to the history of its key and moves the key in the geo index.
func (idx *Indexer) Store(r storage.Record) error {
	v, err := storage.EncodeValue(r.Data)
	if err != nil {
		return err
	}

	return idx.Update(func(tx *badger.Txn) error {
		dk := storage.DataKey(r.Key, r.Time, r.Lat, r.Lng)
		prefix := storage.DataPrefix(r.Key)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()

		exist := false
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			exist = true
			ck := it.Item().KeyCopy(nil)

			// the exact same entry
			if bytes.Equal(ck, dk) {
				return nil
			}

			// one geo entry per key
			ek, et, elat, elng, err := storage.ReadDataKey(ck)
			if err != nil {
				return err
			}
			if err := tx.Delete(storage.PointKey(elat, elng, et, ek)); err != nil {
				return err
			}
		}

		if err := tx.Set(storage.PointKey(r.Lat, r.Lng, r.Time, r.Key), v); err != nil {
			return err
		}
		if err := tx.Set(dk, v); err != nil {
			return err
		}
		if !exist {
			return tx.Set(storage.ListKey(r.Key), nil)
		}
		return nil
	})
}

// History returns up to count records of k, most recent first, count <= 0 returns all of them.
func (idx *Indexer) History(k string, count int) ([]storage.Record, error) {
	var res []storage.Record
	err := idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = count
		if opts.PrefetchSize <= 0 {
			opts.PrefetchSize = 10
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := storage.DataPrefix(k)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if count > 0 && len(res) >= count {
				break
			}
			item := it.Item()
			dk, t, lat, lng, err := storage.ReadDataKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			r := storage.Record{Key: dk, Time: t, Lat: lat, Lng: lng}
			if err := item.Value(func(v []byte) error {
				r.Data, err = storage.DecodeValue(v)
				return err
			}); err != nil {
				return err
			}
			res = append(res, r)
		}
		return nil
	})
	return res, err
}

// Last returns the most recent record of k, nil if none.
func (idx *Indexer) Last(k string) (*storage.Record, error) {
	res, err := idx.History(k, 1)
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, nil
	}
	return &res[0], nil
}

// Keys lists all keys
func (idx *Indexer) Keys() ([]string, error) {
	var res []string
	err := idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := storage.ListPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			res = append(res, string(k[len(prefix):]))
		}
		return nil
	})
	return res, err
}

// RectSearch returns the last record of every key positioned in the rect.
func (idx *Indexer) RectSearch(urlat, urlng, bllat, bllng float64) ([]storage.Record, error) {
	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(bllat, bllng))
	rect = rect.AddPoint(s2.LatLngFromDegrees(urlat, urlng))
	return idx.search(rect, rect.ContainsPoint)
}

// RadiusSearch returns the last record of every key positioned within radius meters.
func (idx *Indexer) RadiusSearch(lat, lng, radius float64) ([]storage.Record, error) {
	c := storage.RadiusCap(lat, lng, radius)
	return idx.search(c, c.ContainsPoint)
}

func (idx *Indexer) search(reg s2.Region, contains func(s2.Point) bool) ([]storage.Record, error) {
	coverer := &s2.RegionCoverer{MaxCells: maxCoverCells}
	var res []storage.Record

	err := idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, c := range coverer.Covering(reg) {
			start, stop := storage.CellRange(c)
			for it.Seek(start); it.Valid(); it.Next() {
				item := it.Item()
				ik := item.Key()
				if len(ik) > len(stop) {
					ik = ik[:len(stop)]
				}
				if bytes.Compare(ik, stop) > 0 {
					break
				}
				cell, t, k, err := storage.ReadPointKey(item.KeyCopy(nil))
				if err != nil {
					return err
				}
				if !contains(cell.Point()) {
					continue
				}
				ll := cell.LatLng()
				r := storage.Record{Key: k, Time: t, Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
				if err := item.Value(func(v []byte) error {
					r.Data, err = storage.DecodeValue(v)
					return err
				}); err != nil {
					return err
				}
				res = append(res, r)
			}
		}
		return nil
	})
	return res, err
}
