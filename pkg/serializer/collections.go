package serializer

import (
	"cmp"
	"maps"
	"slices"
)

// WriteSlice writes a uvarint count followed by each element.
func WriteSlice[T any](w *Writer, items []T, write func(*Writer, T)) {
	w.WriteUvarint(uint64(len(items)))
	for _, it := range items {
		write(w, it)
	}
}

// ReadSlice reads a slice written by WriteSlice.
func ReadSlice[T any](r *Reader, read func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteMap writes a uvarint count followed by key/value pairs in ascending key
// order, so equal maps always encode to equal bytes.
func WriteMap[K cmp.Ordered, V any](w *Writer, m map[K]V, writeKey func(*Writer, K), writeValue func(*Writer, V)) {
	w.WriteUvarint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		writeKey(w, k)
		writeValue(w, m[k])
	}
}

// ReadMap reads a map written by WriteMap. Repeated keys fail with
// ErrDuplicateKey.
func ReadMap[K cmp.Ordered, V any](r *Reader, readKey func(*Reader) (K, error), readValue func(*Reader) (V, error)) (map[K]V, error) {
	n, err := r.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, min(n, 1024))
	for i := 0; i < n; i++ {
		k, err := readKey(r)
		if err != nil {
			return nil, err
		}
		if _, dup := out[k]; dup {
			return nil, ErrDuplicateKey
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
