package core

import (
	"fmt"
	"strings"
)

// This file centralizes constants related to the dataset file format, magic numbers,
// and file naming used across the module.

// --- Magic Numbers ---
const (
	// DatasetMagicNumber identifies a supervised dataset stream file.
	DatasetMagicNumber uint32 = 0x53445354 // "SDST"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version of the dataset stream format.
	FormatVersion uint8 = 1
)

// --- File Names & Suffixes ---
const (
	// DatasetFileSuffix is the conventional suffix for dataset stream files.
	DatasetFileSuffix = ".sds"
	// TempFileSuffix marks a dataset that is still being written.
	TempFileSuffix = "tmp"
)

// --- Default Sizes & Limits ---
const (
	// RecordLengthSize is the size of the length prefix of a record.
	RecordLengthSize = 4
	// ChecksumSize is the size of the CRC32 trailer of a record.
	ChecksumSize = 4
	// RecordOverhead is the framing overhead added to every record payload.
	RecordOverhead = RecordLengthSize + ChecksumSize
	// MaxRecordSize bounds a single stored record. Anything larger is treated as corruption.
	MaxRecordSize = 256 * 1024 * 1024 // 256 MB
)

func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}

// ShuffledFileName derives the default output name for a rewritten dataset,
// e.g. train.sds -> train.shuffled.sds.
func ShuffledFileName(name string) string {
	return OutputFileName(name, ".shuffled")
}

// OutputFileName inserts suffix in front of the dataset file suffix, or
// appends it when name has none.
func OutputFileName(name, suffix string) string {
	if strings.HasSuffix(name, DatasetFileSuffix) {
		return strings.TrimSuffix(name, DatasetFileSuffix) + suffix + DatasetFileSuffix
	}
	return name + suffix
}
