package main

import (
	"encoding/hex"
	"fmt"

	"github.com/keramics/keramics/internal/fs/ext"
	"github.com/keramics/keramics/internal/fs/fat"
	"github.com/keramics/keramics/internal/fs/ntfs"
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/internal/image"
	"github.com/keramics/keramics/internal/volume"
	"github.com/keramics/keramics/pkg/types"
)

func printAPM(stream fsio.DataStream) error {
	parts, err := volume.DecodeAPM(stream)
	if err != nil {
		return fmt.Errorf("unable to open APM volume system: %w", err)
	}
	fmt.Println("Apple Partition Map (APM) information:")
	fmt.Printf("    Bytes per sector\t\t: %d bytes\n", volume.SectorSize)
	fmt.Printf("    Number of partitions\t: %d\n", len(parts))
	for _, p := range parts {
		fmt.Println()
		fmt.Printf("Partition: %d\n", p.Index)
		fmt.Printf("    Type identifier\t\t: %s\n", p.Type)
		if p.Name != "" {
			fmt.Printf("    Name\t\t\t: %s\n", p.Name)
		}
		offset := p.StartLBA * volume.SectorSize
		size := p.SizeLBA * volume.SectorSize
		fmt.Printf("    Offset\t\t\t: %d (0x%08x)\n", offset, offset)
		fmt.Printf("    Size\t\t\t: %s (%d bytes)\n", formatBytesize(size), size)
		fmt.Printf("    Status flags\t\t: 0x%08x\n", p.Flags)
		printAPMStatusFlags(p.Flags)
	}
	fmt.Println()
	return nil
}

func printAPMStatusFlags(flags uint32) {
	named := []struct {
		bit   uint32
		label string
	}{
		{0x00000001, "Is valid"},
		{0x00000002, "Is allocated"},
		{0x00000004, "Is in use"},
		{0x00000008, "Contains boot information"},
		{0x00000010, "Is readable"},
		{0x00000020, "Is writeable"},
		{0x00000040, "Boot code is position independent"},
		{0x00000100, "Contains a chain-compatible driver"},
		{0x00000200, "Contains a real driver"},
		{0x00000400, "Contains a chain driver"},
		{0x40000000, "Automatic mount at startup"},
		{0x80000000, "Is startup partition"},
	}
	for _, n := range named {
		if flags&n.bit != 0 {
			fmt.Printf("        %s\n", n.label)
		}
	}
}

func printGPT(stream fsio.DataStream) error {
	parts, err := volume.DecodeGPT(stream)
	if err != nil {
		return fmt.Errorf("unable to open GPT volume system: %w", err)
	}
	fmt.Println("GUID Partition Table (GPT) information:")
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", volume.SectorSize)
	fmt.Printf("    Number of partitions\t\t: %d\n", len(parts))
	for _, p := range parts {
		fmt.Println()
		fmt.Printf("Partition: %d\n", p.Index)
		fmt.Printf("    Identifier\t\t\t\t: %s\n", p.Identifier)
		fmt.Printf("    Type identifier\t\t\t: %s\n", p.Type)
		offset := p.StartLBA * volume.SectorSize
		size := p.SizeLBA * volume.SectorSize
		fmt.Printf("    Offset\t\t\t\t: %d (0x%08x)\n", offset, offset)
		fmt.Printf("    Size\t\t\t\t: %s (%d bytes)\n", formatBytesize(size), size)
	}
	fmt.Println()
	return nil
}

// printMBR has no original_source/tools/info counterpart (the
// original tool never grew one) but follows the same shape as
// printAPM, the nearest analogue, since MBR is a first-class
// volume-system decoder here.
func printMBR(stream fsio.DataStream) error {
	parts, err := volume.DecodeMBR(stream)
	if err != nil {
		return fmt.Errorf("unable to open MBR volume system: %w", err)
	}
	fmt.Println("Master Boot Record (MBR) information:")
	fmt.Printf("    Bytes per sector\t\t: %d bytes\n", volume.SectorSize)
	fmt.Printf("    Number of partitions\t: %d\n", len(parts))
	for _, p := range parts {
		fmt.Println()
		fmt.Printf("Partition: %d\n", p.Index)
		fmt.Printf("    Type identifier\t\t: %s\n", p.Type)
		offset := p.StartLBA * volume.SectorSize
		size := p.SizeLBA * volume.SectorSize
		fmt.Printf("    Offset\t\t\t: %d (0x%08x)\n", offset, offset)
		fmt.Printf("    Size\t\t\t: %s (%d bytes)\n", formatBytesize(size), size)
	}
	fmt.Println()
	return nil
}

func printQCOW(stream fsio.DataStream) error {
	q, err := image.OpenQCOW2(stream)
	if err != nil {
		return fmt.Errorf("unable to open QCOW file: %w", err)
	}
	fmt.Println("QEMU Copy-On-Write (QCOW) information:")
	fmt.Printf("    Format version\t\t\t: %d\n", q.Version)
	fmt.Printf("    Media size\t\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(q.MediaSize)), q.MediaSize)
	fmt.Printf("    Encryption method\t\t\t: %s\n", q.EncryptionMethodName())
	if q.BackingFileName != "" {
		fmt.Printf("    Backing file name\t\t\t: %s\n", q.BackingFileName)
	}
	fmt.Println()
	return nil
}

func printSparseImage(stream fsio.DataStream) error {
	s, err := image.OpenSparseImage(stream)
	if err != nil {
		return fmt.Errorf("unable to open sparse image file: %w", err)
	}
	fmt.Println("Sparse image (.sparseimage) information:")
	fmt.Printf("    Media size\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(s.MediaSize)), s.MediaSize)
	fmt.Printf("    Bytes per sector\t\t: %d bytes\n", s.BytesPerSector)
	fmt.Printf("    Band size\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(s.BandSize)), s.BandSize)
	fmt.Println()
	return nil
}

func printUDIF(stream fsio.DataStream) error {
	u, err := image.OpenUDIF(stream)
	if err != nil {
		return fmt.Errorf("unable to open UDIF file: %w", err)
	}
	fmt.Println("Universal Disk Image Format (UDIF) information:")
	fmt.Printf("    Media size\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(u.MediaSize)), u.MediaSize)
	fmt.Printf("    Bytes per sector\t\t: %d bytes\n", u.BytesPerSector)
	fmt.Printf("    Compression method\t\t: %s\n", u.CompressionMethodName())
	fmt.Println()
	return nil
}

func printVHD(stream fsio.DataStream) error {
	v, err := image.OpenVHD(stream)
	if err != nil {
		return fmt.Errorf("unable to open VHD file: %w", err)
	}
	fmt.Println("Virtual Hard Disk (VHD) information:")
	fmt.Printf("    Format version\t\t\t: 1.0\n")
	fmt.Printf("    Disk type\t\t\t\t: %s\n", v.DiskTypeName())
	fmt.Printf("    Media size\t\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(v.CurrentSize)), v.CurrentSize)
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", v.BytesPerSector())
	fmt.Printf("    Identifier\t\t\t\t: %s\n", v.DiskID)
	fmt.Println()
	return nil
}

// printEWF has no original_source/tools/info counterpart of its own —
// original_source/keramics-formats/src/ewf/{lines,header_value,hash}.rs
// define the acquisition metadata this surfaces, but the printer shape
// follows printVHD/printVHDX's geometry-then-identifier layout.
func printEWF(stream fsio.DataStream) error {
	e, err := image.OpenEWF([]fsio.DataStream{stream})
	if err != nil {
		return fmt.Errorf("unable to open EWF file: %w", err)
	}
	fmt.Println("Expert Witness Compression Format (EWF) information:")
	fmt.Printf("    Segment count\t\t\t: %d\n", e.SegmentCount())
	fmt.Printf("    Media size\t\t\t\t: %s (%d bytes)\n", formatBytesize(uint64(e.Size())), e.Size())
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", e.SectorSize())
	fmt.Printf("    Chunk size\t\t\t\t: %d bytes\n", e.ChunkSize())

	if a := e.Acquisition(); a != nil {
		fmt.Println()
		fmt.Println("Acquisition information:")
		printIfSet("Case number", a.CaseNumber)
		printIfSet("Evidence number", a.EvidenceNumber)
		printIfSet("Description", a.Description)
		printIfSet("Examiner name", a.Examiner)
		printIfSet("Notes", a.Notes)
		printIfSet("Acquisition date", a.AcquisitionDate)
		printIfSet("System date", a.SystemDate)
		printIfSet("Operating system used", a.OperatingSystem)
		printIfSet("Software version used", a.SoftwareVersion)
		if len(a.MD5Hash) > 0 {
			fmt.Printf("    MD5 hash\t\t\t\t: %s\n", hex.EncodeToString(a.MD5Hash))
		}
	}
	fmt.Println()
	return nil
}

func printIfSet(label, value string) {
	if value != "" {
		fmt.Printf("    %s\t\t\t: %s\n", label, value)
	}
}

// printExt has no original_source/tools/info counterpart; the field
// selection follows what ext's own Superblock exposes.
func printExt(stream fsio.DataStream) error {
	fs, err := ext.Open(stream)
	if err != nil {
		return fmt.Errorf("unable to open ext file system: %w", err)
	}
	sb := fs.Superblock()
	fmt.Println("Extended file system (ext) information:")
	fmt.Printf("    Identifier\t\t\t\t: %s\n", types.UuidFromBytesBE(sb.UUID))
	fmt.Printf("    Bytes per block\t\t\t: %d bytes\n", sb.BlockSize)
	fmt.Printf("    Number of blocks\t\t\t: %d\n", sb.BlocksCount)
	fmt.Printf("    Number of inodes\t\t\t: %d\n", sb.InodesCount)
	fmt.Printf("    Inode size\t\t\t\t: %d bytes\n", sb.InodeSize)
	fmt.Printf("    Number of block groups\t\t: %d\n", sb.GroupCount())
	fmt.Printf("    Uses 64-bit feature\t\t\t: %t\n", sb.Is64Bit)
	fmt.Printf("    Uses metadata checksums\t\t: %t\n", sb.HasMetadataCsum)
	fmt.Println()
	return nil
}

// printNTFS has no original_source/tools/info counterpart; the field
// selection follows what ntfs's own BootSector and volume attributes
// expose.
func printNTFS(stream fsio.DataStream) error {
	fs, err := ntfs.Open(stream)
	if err != nil {
		return fmt.Errorf("unable to open NTFS file system: %w", err)
	}
	boot := fs.BootSector()
	fmt.Println("New Technology File System (NTFS) information:")
	if name := fs.VolumeName(); name != "" {
		fmt.Printf("    Volume name\t\t\t\t: %s\n", name)
	}
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", boot.BytesPerSector)
	fmt.Printf("    Cluster size\t\t\t: %d bytes\n", boot.ClusterSize)
	fmt.Printf("    MFT entry size\t\t\t: %d bytes\n", boot.MFTEntrySize)
	fmt.Printf("    Index block size\t\t\t: %d bytes\n", boot.IndexBlockSize)
	fmt.Printf("    Volume serial number\t\t: %016x\n", boot.SerialNumber)
	fmt.Printf("    $UpCase loaded\t\t\t: %t\n", fs.UpcaseLoaded())
	fmt.Println()
	return nil
}

// printFAT has no original_source/tools/info counterpart; the field
// selection follows what fat's own BootRecord exposes.
func printFAT(stream fsio.DataStream) error {
	fs, err := fat.Open(stream)
	if err != nil {
		return fmt.Errorf("unable to open FAT file system: %w", err)
	}
	boot := fs.BootRecord()
	fmt.Println("File Allocation Table (FAT) information:")
	fmt.Printf("    Format\t\t\t\t: %s\n", fatFormatName(boot.Format))
	if boot.VolumeLabel != "" {
		fmt.Printf("    Volume label\t\t\t: %s\n", boot.VolumeLabel)
	}
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", boot.BytesPerSector)
	fmt.Printf("    Sectors per cluster\t\t\t: %d\n", boot.SectorsPerCluster)
	fmt.Printf("    Cluster size\t\t\t: %d bytes\n", boot.ClusterSize)
	fmt.Printf("    Total clusters\t\t\t: %d\n", boot.TotalClusters)
	fmt.Println()
	return nil
}

func fatFormatName(f fat.Format) string {
	switch f {
	case fat.Format12:
		return "FAT12"
	case fat.Format16:
		return "FAT16"
	case fat.Format32:
		return "FAT32"
	default:
		return "unknown"
	}
}

func printVHDX(stream fsio.DataStream) error {
	v, err := image.OpenVHDX(stream)
	if err != nil {
		return fmt.Errorf("unable to open VHDX file: %w", err)
	}
	fmt.Println("Virtual Hard Disk (VHDX) information:")
	fmt.Printf("    Disk type\t\t\t\t: %s\n", v.DiskTypeName())
	fmt.Printf("    Media size\t\t\t\t: %s (%d bytes)\n", formatBytesize(v.VirtualDiskSize), int64(v.VirtualDiskSize))
	fmt.Printf("    Bytes per sector\t\t\t: %d bytes\n", v.LogicalSectorSize)
	fmt.Printf("    Identifier\t\t\t\t: %s\n", v.VirtualDiskID)
	if v.HasParent {
		if name, ok := v.ParentName(); ok {
			fmt.Printf("    Parent name\t\t\t\t: %s\n", name)
		}
	}
	fmt.Println()
	return nil
}
