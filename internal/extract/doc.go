// Package extract turns page snapshots into typed records.
//
// Fields that the platform renders inconsistently are recovered through an
// ordered chain of independent strategies. Each strategy inspects the same
// immutable snapshot; the first one that yields a non-empty candidate for a
// field wins and later strategies are skipped for that field only. The last
// strategy in the default chain scans raw markup and is reported as degraded.
//
// Extractors never fail on missing fields. Unresolved text stays empty and
// unresolved counts stay zero.
package extract
