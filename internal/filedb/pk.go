package filedb

import (
	"strconv"
	"strings"
)

// PK is a colon-segmented primary key, e.g. task:42. Segments that look like
// integers are ordered numerically, so task:9 sorts before task:10.
type PK struct {
	key      string
	segments []string
}

func newPK(k string) PK {
	return PK{
		key:      k,
		segments: strings.Split(k, ":"),
	}
}

func (pk *PK) String() string {
	return pk.key
}

func (pk *PK) Bytes() []byte {
	return []byte(pk.key)
}

func (pk *PK) Equal(other *PK) bool {
	return pk.key == other.key
}

func (pk *PK) HasPrefix(prefix string) bool {
	return strings.HasPrefix(pk.key, prefix)
}

func (pk *PK) Less(other PK) bool {
	l := smallestSegmentLen(pk.segments, other.segments)

	prevEq := false
	for i := 0; i < l; i++ {
		bothInts, a, b := convertToInts(pk.segments[i], other.segments[i])
		if bothInts {
			if a != b {
				return a < b
			}

			prevEq = true
			continue
		}

		if pk.segments[i] != other.segments[i] {
			return pk.segments[i] < other.segments[i]
		}

		prevEq = true
	}

	return prevEq && len(other.segments) > len(pk.segments)
}

func byPrimaryKeys(a, b interface{}) bool {
	i1, i2 := a.(*entry), b.(*entry)
	return i1.key.Less(i2.key)
}

func smallestSegmentLen(a, b []string) int {
	if len(a) > len(b) {
		return len(b)
	}

	return len(a)
}

// convertToInts refuses leading zeros so that 007 keeps string ordering.
func convertToInts(a, b string) (bool, int, int) {
	if a == "" || b == "" || (a[0] == '0' && len(a) > 1) || (b[0] == '0' && len(b) > 1) {
		return false, 0, 0
	}

	an, err := strconv.Atoi(a)
	if err != nil {
		return false, 0, 0
	}

	bn, err := strconv.Atoi(b)
	if err != nil {
		return false, 0, 0
	}

	return true, an, bn
}
