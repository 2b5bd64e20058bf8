package image

import (
	"strings"
	"unicode/utf16"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/codec"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// Acquisition holds the case metadata entered at acquisition time
// (the EWF header/header2 "lines" sections) plus the acquisition-time
// MD5 of the media (the hash section), for cmd/info's EWF printer.
type Acquisition struct {
	CaseNumber      string
	EvidenceNumber  string
	Description     string
	Examiner        string
	Notes           string
	AcquisitionDate string
	SystemDate      string
	OperatingSystem string
	SoftwareVersion string
	MD5Hash         []byte
}

// ewfHeaderFieldCodes maps a header "lines" field code to the
// Acquisition field it fills. header/header2 carry one tab-separated
// row of codes followed by one tab-separated row of values in the
// same column order.
var ewfHeaderFieldCodes = map[string]func(*Acquisition, string){
	"c":  func(a *Acquisition, v string) { a.CaseNumber = v },
	"n":  func(a *Acquisition, v string) { a.EvidenceNumber = v },
	"a":  func(a *Acquisition, v string) { a.Description = v },
	"e":  func(a *Acquisition, v string) { a.Examiner = v },
	"t":  func(a *Acquisition, v string) { a.Notes = v },
	"m":  func(a *Acquisition, v string) { a.AcquisitionDate = v },
	"u":  func(a *Acquisition, v string) { a.SystemDate = v },
	"ov": func(a *Acquisition, v string) { a.OperatingSystem = v },
	"av": func(a *Acquisition, v string) { a.SoftwareVersion = v },
}

// ewfLines splits a header/header2/ltree section's decoded text into
// lines: '\n'-separated, any trailing '\r' trimmed, stopping at the
// section's zero-padded tail. Unlike a true line-at-a-time iterator,
// this truncates once at the first NUL rather than checking only at
// line starts — equivalent for a well-formed section, where the NUL
// padding only ever begins after the last real line.
func ewfLines(data string) []string {
	if nul := strings.IndexByte(data, 0); nul >= 0 {
		data = data[:nul]
	}
	if data == "" {
		return nil
	}
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// utf16LEToString decodes header2's UTF-16LE payload to a Go string.
func utf16LEToString(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
	}
	return string(utf16.Decode(units))
}

// parseAcquisitionText turns a decoded header/header2 text block
// (line 0: version, line 1: category, line 2: tab-separated field
// codes, line 3: tab-separated values) into an Acquisition. Lines
// past the first value row, if any, are ignored.
func parseAcquisitionText(text string) Acquisition {
	var a Acquisition
	lines := ewfLines(text)
	if len(lines) < 4 {
		return a
	}
	codes := strings.Split(lines[2], "\t")
	values := strings.Split(lines[3], "\t")
	for i, code := range codes {
		if i >= len(values) {
			break
		}
		if set, ok := ewfHeaderFieldCodes[code]; ok {
			set(&a, values[i])
		}
	}
	return a
}

// readHeaderSection inflates a zlib-compressed "header" (ASCII) or
// "header2" (UTF-16LE) section and merges its fields into e's
// Acquisition, preferring header2 when both are present (header2
// alone may encode the wider character set, and whichever is read
// second takes priority by simply overwriting e.acquisitionHeader2).
func (e *EWF) readHeaderSection(media fsio.DataStream, offset, sectionEnd int64, isHeader2 bool) error {
	raw := make([]byte, sectionEnd-offset)
	if err := fsio.ReadExactAt(media, offset, raw); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading header section")
	}
	inflated, err := codec.InflateZlib(raw)
	if err != nil {
		return kerr.Wrap(err, "image.ewf", "inflating header section")
	}

	var text string
	if isHeader2 {
		text = utf16LEToString(inflated)
	} else {
		text = string(inflated)
	}
	a := parseAcquisitionText(text)
	if isHeader2 {
		e.acquisitionHeader2 = &a
	} else if e.acquisitionHeader == nil {
		e.acquisitionHeader = &a
	}
	return nil
}

// readHashSection parses the 36-byte hash section (16-byte MD5,
// 16 reserved bytes, a little-endian Adler-32 over the first 32
// bytes) and stores the MD5 on e's Acquisition.
func (e *EWF) readHashSection(media fsio.DataStream, offset int64) error {
	buf := make([]byte, 36)
	if err := fsio.ReadExactAt(media, offset, buf); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading hash section")
	}
	storedChecksum := types.U32LE(buf[32:36])
	if calc := checksum.Adler32(buf[0:32]); calc != storedChecksum {
		return kerr.New(kerr.KindChecksumMismatch, "image.ewf", "hash section checksum mismatch")
	}
	e.acquisitionMD5 = append([]byte(nil), buf[0:16]...)
	return nil
}

// Acquisition returns the acquisition metadata assembled from this
// image's header/header2 and hash sections, preferring header2's
// fields over header's when both were present, with the hash
// section's MD5 merged in. Returns nil if the image carried no
// header/header2 section at all.
func (e *EWF) Acquisition() *Acquisition {
	var a Acquisition
	switch {
	case e.acquisitionHeader2 != nil:
		a = *e.acquisitionHeader2
	case e.acquisitionHeader != nil:
		a = *e.acquisitionHeader
	default:
		return nil
	}
	a.MD5Hash = e.acquisitionMD5
	return &a
}
