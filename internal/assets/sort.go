package assets

import (
	"fmt"
	"sort"
	"strings"
)

type SortKey string

const (
	SortByName    SortKey = "name"
	SortByBalance SortKey = "balance"
	SortBySpam    SortKey = "spam"
)

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByName, SortByBalance, SortBySpam:
		return k, nil
	case "":
		return SortByName, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Ascending, Descending:
		return d, nil
	case "":
		return Ascending, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", s)
	}
}

// Sort returns a sorted copy. Records with equal keys keep their input order in both directions.
func Sort(records []AssetRecord, key SortKey, dir Direction) []AssetRecord {
	out := make([]AssetRecord, len(records))
	copy(out, records)

	cmp := comparator(key)
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func comparator(key SortKey) func(a, b AssetRecord) int {
	switch key {
	case SortByBalance:
		return func(a, b AssetRecord) int {
			return a.Balance().Cmp(b.Balance())
		}
	case SortBySpam:
		return func(a, b AssetRecord) int {
			switch {
			case a.SpamFlag == b.SpamFlag:
				return 0
			case !a.SpamFlag:
				return -1
			default:
				return 1
			}
		}
	default:
		return func(a, b AssetRecord) int {
			return strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
		}
	}
}
