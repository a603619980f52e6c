// Package storage enforces retention quotas on the day-partitioned
// evidence tree. Only directories whose names match the YYYY-MM-DD
// pattern are ever measured or removed; symlinks and foreign entries are
// left alone so enforcement can never escape the evidence root.
package storage
