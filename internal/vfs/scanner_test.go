package vfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScannerDiscoversMBRPartition(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imgPath, buildMBRImage(t, "partition payload"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scanner, err := NewScanner(NewResolver())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	tree, err := scanner.Scan(imgPath)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if tree.Location.Path.Tag != TagOS {
		t.Fatalf("root tag = %v, want TagOS", tree.Location.Path.Tag)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("got %d children, want 1", len(tree.Children))
	}
	mbrNode := tree.Children[0]
	if mbrNode.Location.Path.Tag != TagMBR {
		t.Fatalf("child tag = %v, want TagMBR", mbrNode.Location.Path.Tag)
	}
	if len(mbrNode.Children) != 1 {
		t.Fatalf("got %d MBR partitions, want 1", len(mbrNode.Children))
	}
	if mbrNode.Children[0].Location.Path.Index != 1 {
		t.Fatalf("partition index = %d, want 1", mbrNode.Children[0].Location.Path.Index)
	}
}

func TestScannerPlainFileHasNoChildren(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "plain.bin")
	if err := os.WriteFile(imgPath, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scanner, err := NewScanner(NewResolver())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	tree, err := scanner.Scan(imgPath)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(tree.Children) != 0 {
		t.Fatalf("got %d children for an all-zero file, want 0", len(tree.Children))
	}
}
