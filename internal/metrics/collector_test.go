package metrics

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
	if c.registry == nil {
		t.Fatal("registry is nil")
	}
}

func TestRecordDecodeSuccessAndFailure(t *testing.T) {
	c := NewCollector()
	c.RecordDecode("qcow2", nil)
	c.RecordDecode("qcow2", errors.New("bad magic"))

	text, err := c.DumpText()
	if err != nil {
		t.Fatalf("DumpText: %v", err)
	}
	if !strings.Contains(text, `format="qcow2",status="ok"`) {
		t.Errorf("expected an ok sample for qcow2, got:\n%s", text)
	}
	if !strings.Contains(text, `format="qcow2",status="error"`) {
		t.Errorf("expected an error sample for qcow2, got:\n%s", text)
	}
}

func TestRecordChecksumFailure(t *testing.T) {
	c := NewCollector()
	c.RecordChecksumFailure("vhdx")

	text, err := c.DumpText()
	if err != nil {
		t.Fatalf("DumpText: %v", err)
	}
	if !strings.Contains(text, `checksum_failures_total{format="vhdx"} 1`) {
		t.Errorf("expected a checksum failure sample for vhdx, got:\n%s", text)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	c := NewCollector()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	text, err := c.DumpText()
	if err != nil {
		t.Fatalf("DumpText: %v", err)
	}
	if !strings.Contains(text, `cache_requests_total{result="hit"} 2`) {
		t.Errorf("expected two cache hits, got:\n%s", text)
	}
	if !strings.Contains(text, `cache_requests_total{result="miss"} 1`) {
		t.Errorf("expected one cache miss, got:\n%s", text)
	}
}

func TestRecordBytesRead(t *testing.T) {
	c := NewCollector()
	c.RecordBytesRead(512)
	c.RecordBytesRead(1024)
	c.RecordBytesRead(0)

	text, err := c.DumpText()
	if err != nil {
		t.Fatalf("DumpText: %v", err)
	}
	if !strings.Contains(text, "bytes_read_total 1536") {
		t.Errorf("expected bytes_read_total 1536, got:\n%s", text)
	}
}

func TestDumpTextEmptyCollector(t *testing.T) {
	c := NewCollector()
	text, err := c.DumpText()
	if err != nil {
		t.Fatalf("DumpText: %v", err)
	}
	if !strings.Contains(text, "keramics_bytes_read_total 0") {
		t.Errorf("expected the bytes_read_total sample even before any bytes are read, got:\n%s", text)
	}
}
