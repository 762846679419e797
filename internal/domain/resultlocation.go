package domain

import (
	"encoding/json"
	"time"
)

// ResultLocation is a self-describing, tagged descriptor from which a Result
// record can be dereferenced without any side channel. The Backend field is
// always written first so the query path never needs external knowledge of
// which backend produced it.
type ResultLocation struct {
	Backend StorageKind

	// KeyValue backend fields.
	Key       string
	Partition int
	TTL       time.Duration

	// DocumentDB backend fields.
	Collection string
	DocumentID string
}

type resultLocationWire struct {
	Backend    StorageKind `json:"backend"`
	Key        string      `json:"key,omitempty"`
	Partition  int         `json:"partition,omitempty"`
	TTL        string      `json:"ttl,omitempty"`
	Collection string      `json:"collection,omitempty"`
	DocumentID string      `json:"document_id,omitempty"`
}

// MarshalJSON writes the discriminant first, followed by every non-empty
// field; fields are not filtered by backend, so an unused field is omitted
// only because it is empty.
func (l ResultLocation) MarshalJSON() ([]byte, error) {
	w := resultLocationWire{
		Backend:    l.Backend,
		Key:        l.Key,
		Partition:  l.Partition,
		Collection: l.Collection,
		DocumentID: l.DocumentID,
	}
	if l.TTL > 0 {
		w.TTL = l.TTL.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the discriminant and populates only the fields present.
func (l *ResultLocation) UnmarshalJSON(b []byte) error {
	var w resultLocationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var ttl time.Duration
	if w.TTL != "" {
		d, err := time.ParseDuration(w.TTL)
		if err != nil {
			return err
		}
		ttl = d
	}
	*l = ResultLocation{
		Backend:    w.Backend,
		Key:        w.Key,
		Partition:  w.Partition,
		TTL:        ttl,
		Collection: w.Collection,
		DocumentID: w.DocumentID,
	}
	return nil
}

// Equal reports value equality, used by the result-location round-trip test property.
func (l ResultLocation) Equal(o ResultLocation) bool {
	return l.Backend == o.Backend &&
		l.Key == o.Key &&
		l.Partition == o.Partition &&
		l.TTL == o.TTL &&
		l.Collection == o.Collection &&
		l.DocumentID == o.DocumentID
}
