package load

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/t3/lake/pipeline/pkg/clean"
)

// DefaultPrefix is where the lake lives inside the bucket.
const DefaultPrefix = "input/"

// Partition is the hour a transaction belongs to, in UTC.
type Partition struct {
	Year  int32
	Month int32
	Day   int32
	Hour  int32
}

func PartitionOf(at time.Time) Partition {
	at = at.UTC()
	return Partition{
		Year:  int32(at.Year()),
		Month: int32(at.Month()),
		Day:   int32(at.Day()),
		Hour:  int32(at.Hour()),
	}
}

// Path returns the hive-style directory of the partition.
func (p Partition) Path() string {
	return fmt.Sprintf("year=%d/month=%d/day=%d/hour=%d", p.Year, p.Month, p.Day, p.Hour)
}

func (p Partition) compare(o Partition) int {
	return cmp.Or(cmp.Compare(p.Year, o.Year), cmp.Compare(p.Month, o.Month), cmp.Compare(p.Day, o.Day), cmp.Compare(p.Hour, o.Hour))
}

// PartitionTransactions groups transactions by hour. Partitions are returned in time order and
// rows keep their input order within a partition.
func PartitionTransactions(rows []clean.Transaction) ([]Partition, map[Partition][]clean.Transaction) {
	groups := make(map[Partition][]clean.Transaction)
	for _, r := range rows {
		p := PartitionOf(r.At)
		groups[p] = append(groups[p], r)
	}
	parts := slices.SortedFunc(maps.Keys(groups), Partition.compare)
	return parts, groups
}

// Layout names the objects of the lake under a prefix.
type Layout struct {
	Prefix string
}

func NewLayout(prefix string) Layout {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Layout{Prefix: prefix}
}

// DimensionKey is overwritten on every run.
func (l Layout) DimensionKey(table string) string {
	return fmt.Sprintf("%s%s/%s.parquet", l.Prefix, table, table)
}

// TransactionKey is unique per run and partition.
func (l Layout) TransactionKey(p Partition, runID string) string {
	return fmt.Sprintf("%s%s/%s/%s.parquet", l.Prefix, clean.TableTransaction, p.Path(), runID)
}

func (l Layout) StagingKey(runID, key string) string {
	return fmt.Sprintf("%s_staging/%s/%s", l.Prefix, runID, strings.TrimPrefix(key, l.Prefix))
}

func (l Layout) ManifestKey(runID string) string {
	return fmt.Sprintf("%s_manifests/%s.json", l.Prefix, runID)
}

func (l Layout) LatestManifestKey() string {
	return l.Prefix + "_manifests/latest.json"
}
