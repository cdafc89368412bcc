package wire

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"

	"notifface/internal/icon"
)

// Path is the fixed channel path the icon payload is published under.
const Path = "/foobar"

const (
	iconPrefix     = "icon"
	safeIconPrefix = "safeicon"
)

// Payload is the key-value map carried by the sync channel.
type Payload map[string][]byte

func IconKey(i int) string     { return iconPrefix + strconv.Itoa(i) }
func SafeIconKey(i int) string { return safeIconPrefix + strconv.Itoa(i) }

// Clone returns a deep copy so callers can keep a payload past a publish.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Hash returns a stable 64-bit hash over the sorted keys and their values.
// Two payloads with the same content hash the same regardless of map order.
func (p Payload) Hash() uint64 {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := fnv.New64a()
	var n [8]byte
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		v := p[k]
		l := uint64(len(v))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		_, _ = h.Write(n[:])
		_, _ = h.Write(v)
	}
	return h.Sum64()
}

// Slots counts the leading consecutive icon{i} keys.
func (p Payload) Slots() int {
	n := 0
	for {
		if _, ok := p[IconKey(n)]; !ok {
			return n
		}
		n++
	}
}

// Pack encodes every icon and its safe twin into numbered slots.
func Pack(pair icon.Pair) (Payload, error) {
	if len(pair.Icons) != len(pair.Safe) {
		return nil, fmt.Errorf("wire: pack: %d icons but %d safe icons", len(pair.Icons), len(pair.Safe))
	}
	out := make(Payload, 2*len(pair.Icons))
	for i := range pair.Icons {
		b, err := Encode(pair.Icons[i])
		if err != nil {
			return nil, fmt.Errorf("wire: pack %s: %w", IconKey(i), err)
		}
		s, err := Encode(pair.Safe[i])
		if err != nil {
			return nil, fmt.Errorf("wire: pack %s: %w", SafeIconKey(i), err)
		}
		out[IconKey(i)] = b
		out[SafeIconKey(i)] = s
	}
	return out, nil
}

// Unpack decodes slots 0, 1, 2, ... and stops at the first missing icon{i}.
// Higher slots after a gap are ignored.
//
// A slot whose icon is present but whose safe icon is missing or undecodable
// fails the whole unpack with ErrDecode; the caller keeps what it had.
func Unpack(p Payload) (icon.Pair, error) {
	var pair icon.Pair
	for i := 0; ; i++ {
		raw, ok := p[IconKey(i)]
		if !ok {
			return pair, nil
		}
		b, err := Decode(raw)
		if err != nil {
			return icon.Pair{}, fmt.Errorf("slot %d: %w", i, err)
		}
		safeRaw, ok := p[SafeIconKey(i)]
		if !ok {
			return icon.Pair{}, fmt.Errorf("slot %d: %w: %s missing", i, ErrDecode, SafeIconKey(i))
		}
		s, err := Decode(safeRaw)
		if err != nil {
			return icon.Pair{}, fmt.Errorf("slot %d: %w", i, err)
		}
		pair.Icons = append(pair.Icons, b)
		pair.Safe = append(pair.Safe, s)
	}
}

// IsDecodeError reports whether err came from a malformed payload.
func IsDecodeError(err error) bool { return errors.Is(err, ErrDecode) }
