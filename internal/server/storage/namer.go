package storage

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout gives second-level resolution: 2024_Jun_01-15_04_05.
const timestampLayout = "2006_Jan_02-15_04_05"

const nameCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Namer generates server-side filenames for stored uploads. Client
// filenames never reach the disk; only their extension survives.
//
// No uniqueness check is made against existing files: second-resolution
// timestamps plus the random suffix make collisions negligible.
type Namer struct {
	suffixLen int
	now       func() time.Time
}

// NewNamer creates a Namer with the given random-suffix length.
func NewNamer(suffixLen int) *Namer {
	return &Namer{suffixLen: suffixLen, now: time.Now}
}

// Generate produces a new filename of the form
// {timestamp}_{randomSuffix}{originalExtension}, extension lower-cased.
func (n *Namer) Generate(originalFilename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))

	suffix, err := randomString(n.suffixLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate name suffix: %w", err)
	}

	return n.now().Format(timestampLayout) + "_" + suffix + ext, nil
}

// randomString draws length characters uniformly from the alphanumeric set.
func randomString(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(nameCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		out[i] = nameCharset[idx.Int64()]
	}
	return string(out), nil
}
