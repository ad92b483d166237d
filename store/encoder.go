package store

import (
	"bytes"
	"reflect"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v4"
)

// GraphField is a struct field persisted under its graph tag
type GraphField struct {
	index int
	name  string
}

// DiscoverPredicates of the struct f points to
func DiscoverPredicates(f interface{}) []*GraphField {
	predicates := make([]*GraphField, 0)
	rt := reflect.TypeOf(f).Elem()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("graph")
		if name != "" {
			predicates = append(predicates, &GraphField{index: i, name: name})
		}
	}
	return predicates
}

// MakeKey of a predicate and id
func MakeKey(id []byte, predicate string) []byte {
	key := []byte(predicate)
	key = append(key, byte(':'))
	key = append(key, id...)
	return key
}

// GetID of key from a pred:key
func GetID(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	if len(split) == 1 {
		return []byte{}
	}
	return split[1]
}

// GetPredicate from pred:key
func GetPredicate(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	return split[0]
}

// Encode a struct reflect.Value field denoted by index into msgpack
func Encode(val reflect.Value, index int) ([]byte, error) {
	return msgpack.Marshal(val.Field(index).Interface())
}

// EncodeStruct writes every predicate of the struct v points to under id
func EncodeStruct(txn *badger.Txn, predicates []*GraphField, id []byte, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	for _, pred := range predicates {
		bytez, err := Encode(rv, pred.index)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", pred.name)
		}
		// key = <predicate>:<id>, value = msgpack'd bytes
		if err := txn.Set(MakeKey(id, pred.name), bytez); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStruct reads every predicate stored under id into the struct out points to
func DecodeStruct(txn *badger.Txn, predicates []*GraphField, id []byte, out interface{}) error {
	rv := reflect.ValueOf(out).Elem()
	for _, pred := range predicates {
		item, err := txn.Get(MakeKey(id, pred.name))
		if err != nil {
			return errors.Wrapf(err, "reading %s", pred.name)
		}
		field := rv.Field(pred.index).Addr().Interface()
		if err := item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, field)
		}); err != nil {
			return errors.Wrapf(err, "decoding %s", pred.name)
		}
	}
	return nil
}

// DecodeString value
func DecodeString(val []byte) (string, error) {
	var s string
	err := msgpack.Unmarshal(val, &s)
	return s, err
}
