package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keramics/keramics/pkg/types"
)

const (
	mbrSectorSize      = 512
	mbrSignatureOffset = 510
	mbrTableOffset     = 446
	mbrEntrySize       = 16
)

func putMBREntry(sector []byte, idx int, typ byte, startLBA, sizeLBA uint32) {
	off := mbrTableOffset + idx*mbrEntrySize
	sector[off+4] = typ
	types.PutU32LE(sector[off+8:off+12], startLBA)
	types.PutU32LE(sector[off+12:off+16], sizeLBA)
}

// buildMBRImage assembles a single-partition MBR disk whose lone
// partition (type 0x83, sectors 2..12) holds content at its start.
func buildMBRImage(t *testing.T, content string) []byte {
	t.Helper()
	img := make([]byte, 20*mbrSectorSize)
	img[mbrSignatureOffset] = 0x55
	img[mbrSignatureOffset+1] = 0xaa
	putMBREntry(img, 0, 0x83, 2, 10)
	copy(img[2*mbrSectorSize:], content)
	return img
}

func TestResolverOpensMBRPartitionByIndex(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")
	content := "hello from partition one\n"
	if err := os.WriteFile(imgPath, buildMBRImage(t, content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewResolver()
	osLoc := &VfsLocation{Path: VfsPath{Tag: TagOS, OSPath: imgPath}}
	partLoc := &VfsLocation{Path: VfsPath{Tag: TagMBR, Index: 1}, Parent: osLoc}

	stream, err := r.OpenDataStream(partLoc)
	if err != nil {
		t.Fatalf("OpenDataStream: %v", err)
	}
	buf := make([]byte, len(content))
	if err := stream.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != content {
		t.Fatalf("content = %q, want %q", buf, content)
	}
}

func TestResolverCachesOpenedStream(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imgPath, buildMBRImage(t, "x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewResolver()
	osLoc := &VfsLocation{Path: VfsPath{Tag: TagOS, OSPath: imgPath}}
	partLoc := &VfsLocation{Path: VfsPath{Tag: TagMBR, Index: 1}, Parent: osLoc}

	first, err := r.OpenDataStream(partLoc)
	if err != nil {
		t.Fatalf("OpenDataStream: %v", err)
	}
	second, err := r.OpenDataStream(partLoc)
	if err != nil {
		t.Fatalf("OpenDataStream: %v", err)
	}
	if first != second {
		t.Fatal("expected the second OpenDataStream to return the cached stream")
	}
}

func TestResolverMissingPartitionIndex(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imgPath, buildMBRImage(t, "x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewResolver()
	osLoc := &VfsLocation{Path: VfsPath{Tag: TagOS, OSPath: imgPath}}
	partLoc := &VfsLocation{Path: VfsPath{Tag: TagMBR, Index: 2}, Parent: osLoc}

	if _, err := r.OpenDataStream(partLoc); err == nil {
		t.Fatal("expected an error for a non-existent partition index")
	}
}

func TestResolverFakeFixture(t *testing.T) {
	r := NewResolverWithFixtures(map[string][]byte{"probe": []byte("fixture bytes")})
	loc := &VfsLocation{Path: VfsPath{Tag: TagFAKE, OSPath: "probe"}}

	stream, err := r.OpenDataStream(loc)
	if err != nil {
		t.Fatalf("OpenDataStream: %v", err)
	}
	buf := make([]byte, stream.Size())
	if err := stream.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != "fixture bytes" {
		t.Fatalf("content = %q", buf)
	}
}

func TestResolverFakeFixtureMissing(t *testing.T) {
	r := NewResolverWithFixtures(map[string][]byte{})
	loc := &VfsLocation{Path: VfsPath{Tag: TagFAKE, OSPath: "missing"}}
	if _, err := r.OpenDataStream(loc); err == nil {
		t.Fatal("expected an error for an unregistered fixture name")
	}
}

func TestEWFSegmentExtensionSequence(t *testing.T) {
	cases := map[int]string{1: "E01", 99: "E99", 100: "EAA", 101: "EAB", 125: "EAZ", 126: "EBA"}
	for n, want := range cases {
		if got := ewfSegmentExtension(n); got != want {
			t.Fatalf("ewfSegmentExtension(%d) = %q, want %q", n, got, want)
		}
	}
}
