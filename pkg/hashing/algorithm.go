package hashing

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"

	"github.com/zeebo/blake3"
)

const (
	SHA1   = "sha1"
	SHA256 = "sha256"
	BLAKE3 = "blake3"

	DefaultAlgorithm = SHA1
)

var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

var algorithms = map[string]func() hash.Hash{
	SHA1:   sha1.New,
	SHA256: sha256.New,
	BLAKE3: func() hash.Hash { return blake3.New() },
}

// Algorithm produces hex encoded content digests.
type Algorithm struct {
	name  string
	newFn func() hash.Hash
}

func NewAlgorithm(name string) (Algorithm, error) {
	fn, ok := algorithms[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %q; supported algorithms are %v", ErrUnknownAlgorithm, name, Algorithms())
	}
	return Algorithm{name: name, newFn: fn}, nil
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Algorithm) Name() string {
	return a.name
}

func (a Algorithm) Reader(r io.Reader) (string, error) {
	h := a.newFn()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (a Algorithm) Bytes(data []byte) string {
	h := a.newFn()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (a Algorithm) File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return a.Reader(file)
}
