// checkpoint persists rate-search results in a bolt database so that
// long multi-run searches leave an inspectable trail.
package checkpoint

import (
	"encoding/json"
	"strconv"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is key name for all parameters
var MAIN = []byte("main")

// RunData stores the result of one search run.
type RunData struct {
	Lambda    []float64
	Score     float64
	Run       int
	Converged bool
	Final     bool
}

// RunSaver saves search runs under one key.
type RunSaver struct {
	db  *bolt.DB
	key []byte
}

// NewRunSaver creates a new RunSaver.
func NewRunSaver(db *bolt.DB, key []byte) (s *RunSaver) {
	s = &RunSaver{
		db:  db,
		key: key,
	}
	return
}

// SaveRun saves one run result; the final result overwrites the
// per-run records under the main key.
func (s *RunSaver) SaveRun(run int, params []float64, score float64, converged, final bool) error {
	data := &RunData{
		Lambda:    append([]float64(nil), params...),
		Score:     score,
		Run:       run,
		Converged: converged,
		Final:     final,
	}
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	key := s.key
	if !final {
		key = []byte(string(s.key) + "/" + strconv.Itoa(run))
	}
	err = SaveData(s.db, key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Last returns the final result stored under the saver's key, nil if
// none was saved.
func (s *RunSaver) Last() (*RunData, error) {
	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}
	var data *RunData
	if err = json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data != nil && data.Final {
		log.Noticef("Found finished search checkpoint (run=%v, score=%v)", data.Run, data.Score)
	}
	return data, nil
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	if db == nil {
		return nil, nil
	}
	var data []byte
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v != nil {
			data = append(data, v...)
		}
		return nil
	})
	return data, err
}
