// Package ntfs decodes NTFS volumes: boot sector, Master File Table,
// attribute vectors (resident and non-resident, including LZNT1
// compression units), and $INDEX_ROOT/$INDEX_ALLOCATION directory
// B-trees.
//
// Opening a volume walks a fixed state machine: BOOT_READ parses the
// boot sector; MFT_BOOTSTRAP reads MFT entry 0 using only the small
// run list inline in its own $DATA attribute, then uses that to build
// a DataStream over the full table; MFT_COMPLETE resolves entry 3
// ($Volume) and entry 10 ($UpCase); UPCASE_LOADED marks the case-fold
// table ready, after which the volume is READY for lookups.
package ntfs
