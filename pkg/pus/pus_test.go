// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// withCRC appends a valid CRC trailer slot to a space packet whose data
// field already reserves the last two bytes
func withCRC(packet []byte) []byte {
	end := len(packet) - CRCSize
	binary.BigEndian.PutUint16(packet[end:], CalculateCRC(packet[:end]))
	return packet
}

func fixedTime() *CDSTime {
	t := CDSTime{Days: 24000, MillisOfDay: 43200123}
	return &t
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != 0xFFFF {
		t.Errorf("expected 0xFFFF for empty data, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"check string", []byte("123456789"), 0x29B1},
		{"single zero", []byte{0x00}, 0xE1F0},
		{"single 0xFF", []byte{0xFF}, 0xFF00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Incremental(t *testing.T) {
	data := []byte("123456789")
	for split := 0; split <= len(data); split++ {
		if crc := updateCRC(updateCRC(crcInitial, data[:split]), data[split:]); crc != 0x29B1 {
			t.Errorf("split at %d: expected 0x29B1, got 0x%04X", split, crc)
		}
	}
}

func TestCRCTable(t *testing.T) {
	if crcTable[0] != 0 {
		t.Errorf("expected table[0] = 0, got 0x%04X", crcTable[0])
	}
	if crcTable[1] != crcPolynomial {
		t.Errorf("expected table[1] = 0x%04X, got 0x%04X", crcPolynomial, crcTable[1])
	}
	if crcTable[0x80] != 0x9188 {
		t.Errorf("expected table[0x80] = 0x9188, got 0x%04X", crcTable[0x80])
	}
}

// ============================================================
// Encoding Tests
// ============================================================

func TestEncode_PingLayout(t *testing.T) {
	packet, err := NewPing(0x073, 5, 0x0042).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	expected := []byte{
		0x18, 0x73, 0xC0, 0x05, 0x00, 0x06, // TC, secondary header, apid 0x073, seq 5, 7 byte field
		0x29, 0x11, 0x01, 0x00, 0x42, // PUS-C, ack A+C, service 17, subservice 1, source 0x0042
	}
	if len(packet) != len(expected)+CRCSize {
		t.Fatalf("expected %d bytes, got %d", len(expected)+CRCSize, len(packet))
	}
	if !bytes.Equal(packet[:len(expected)], expected) {
		t.Errorf("header mismatch:\n got % X\nwant % X", packet[:len(expected)], expected)
	}
	crc := binary.BigEndian.Uint16(packet[len(expected):])
	if crc != CalculateCRC(packet[:len(expected)]) {
		t.Errorf("CRC trailer 0x%04X does not cover the packet", crc)
	}
}

func TestEncode_PUSA(t *testing.T) {
	p := NewTelecommand(0x10, 1, 8, 1, AckAcceptance, 0x7F, []byte{0xAB})
	p.Header.Version = VersionA

	packet, err := p.Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	sec := packet[ccsds.HeaderSize : ccsds.HeaderSize+tcHeaderSizeA]
	if !bytes.Equal(sec, []byte{0x11, 0x08, 0x01, 0x7F}) {
		t.Errorf("PUS-A header mismatch: % X", sec)
	}
}

func TestEncode_FieldRange(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   error
	}{
		{
			"PUS-A source ID",
			&Packet{Primary: ccsds.NewHeader(ccsds.TC, 1, 0, true), Header: Header{Version: VersionA, SourceID: 256}},
			ErrFieldRange,
		},
		{
			"PUS-A message counter",
			&Packet{Primary: ccsds.NewHeader(ccsds.TM, 1, 0, true), Header: Header{Version: VersionA, MessageCounter: 300, Time: fixedTime()}},
			ErrFieldRange,
		},
		{
			"time reference",
			&Packet{Primary: ccsds.NewHeader(ccsds.TM, 1, 0, true), Header: Header{Version: VersionC, TimeRef: 16}},
			ErrFieldRange,
		},
		{
			"unknown version",
			&Packet{Primary: ccsds.NewHeader(ccsds.TC, 1, 0, true), Header: Header{Version: 3}},
			ErrUnsupportedVersion,
		},
		{
			"APID",
			NewTelecommand(0x800, 0, 17, 1, AckNone, 0, nil),
			ccsds.ErrInvalidAPID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.packet.Pack(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncode_StampsTelemetry(t *testing.T) {
	saved := timeNow
	defer func() { timeNow = saved }()
	now := time.Date(2024, time.March, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	timeNow = func() time.Time { return now }

	packet, err := NewPingReply(0x20, 3, 0).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	p, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Header.Time == nil || !p.Header.Time.Time().Equal(now) {
		t.Errorf("expected time stamp %v, got %v", now, p.Header.Time)
	}
}

func TestMustPack_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustPack to panic on invalid APID")
		}
	}()
	NewPing(0xFFFF, 0, 0).MustPack()
}

// ============================================================
// Decoding Tests
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
	}{
		{"PUS-C ping", NewPing(0x073, 5, 0x0042)},
		{"PUS-C TC with data", NewTelecommand(0x7FE, ccsds.MaxSequence, 8, 1, AckAll, 0xFFFF, bytes.Repeat([]byte{0x5A}, 200))},
		{"PUS-C TM", &Packet{
			Primary: ccsds.NewHeader(ccsds.TM, 0x100, 77, true),
			Header:  Header{Version: VersionC, TimeRef: 3, Service: 3, Subservice: 25, SourceID: 9, MessageCounter: 4000, Time: fixedTime()},
			Data:    []byte{1, 2, 3},
		}},
		{"PUS-A TC", &Packet{
			Primary: ccsds.NewHeader(ccsds.TC, 0x001, 1, true),
			Header:  Header{Version: VersionA, AckFlags: AckCompletion, Service: 20, Subservice: 1, SourceID: 200},
			Data:    []byte{0xFF},
		}},
		{"PUS-A TM", &Packet{
			Primary: ccsds.NewHeader(ccsds.TM, 0x002, 2, true),
			Header:  Header{Version: VersionA, Service: 5, Subservice: 1, MessageCounter: 255, Time: fixedTime()},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.packet.Pack()
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			got, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if got.Primary.PacketSize() != len(encoded) {
				t.Errorf("packet size %d, encoded %d", got.Primary.PacketSize(), len(encoded))
			}
			want := tt.packet.Primary
			want.DataLength = got.Primary.DataLength
			if got.Primary != want {
				t.Errorf("primary header mismatch: got %+v, want %+v", got.Primary, want)
			}
			if !reflect.DeepEqual(got.Header, tt.packet.Header) {
				t.Errorf("PUS header mismatch: got %+v, want %+v", got.Header, tt.packet.Header)
			}
			if !bytes.Equal(got.Data, tt.packet.Data) {
				t.Errorf("data mismatch: got % X, want % X", got.Data, tt.packet.Data)
			}
		})
	}
}

func TestDecode_SingleBitFlip(t *testing.T) {
	encoded := NewTelecommand(0x123, 42, 8, 1, AckAll, 7, []byte{0x00, 0x02, 0x03, 0x10}).MustPack()

	for i := range encoded {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), encoded...)
			corrupted[i] ^= 1 << bit
			if _, err := Decode(corrupted); !errors.Is(err, ErrChecksum) {
				t.Fatalf("byte %d bit %d: expected ErrChecksum, got %v", i, bit, err)
			}
		}
	}
}

func TestDecode_ShortInput(t *testing.T) {
	for n := 0; n < ccsds.HeaderSize; n++ {
		if _, err := Decode(make([]byte, n)); !errors.Is(err, ccsds.ErrMalformedHeader) {
			t.Errorf("%d bytes: expected ErrMalformedHeader, got %v", n, err)
		}
	}
	if _, err := Decode(make([]byte, ccsds.HeaderSize+1)); !errors.Is(err, ccsds.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecode_LengthMismatchWithValidCRC(t *testing.T) {
	packet, _ := ccsds.Encode(ccsds.NewHeader(ccsds.TC, 1, 0, true), []byte{0x21, 17, 1, 0, 0, 0, 0})
	packet = append(packet, 0x00, 0x00) // two extra bytes past the announced length
	withCRC(packet)

	if _, err := Decode(packet); !errors.Is(err, ccsds.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	for _, first := range []byte{0x00, 0x30, 0x80, 0xF1} {
		packet, _ := ccsds.Encode(ccsds.NewHeader(ccsds.TC, 1, 0, true), []byte{first, 17, 1, 0, 0, 0, 0})
		if _, err := Decode(withCRC(packet)); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("first byte 0x%02X: expected ErrUnsupportedVersion, got %v", first, err)
		}
	}
}

func TestDecode_ServiceFieldMissing(t *testing.T) {
	tests := []struct {
		name  string
		typ   ccsds.PacketType
		field []byte
	}{
		{"empty data field", ccsds.TC, []byte{0, 0}},
		{"PUS-C TC header cut", ccsds.TC, []byte{0x21, 17, 0, 0}},
		{"PUS-C TM without time", ccsds.TM, []byte{0x20, 17, 2, 0, 0, 0, 0, 0, 0}},
		{"PUS-A TC version only", ccsds.TC, []byte{0x11, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := ccsds.Encode(ccsds.NewHeader(tt.typ, 1, 0, true), tt.field)
			if err != nil {
				t.Fatalf("ccsds.Encode failed: %v", err)
			}
			if _, err := Decode(withCRC(packet)); !errors.Is(err, ErrServiceField) {
				t.Errorf("expected ErrServiceField, got %v", err)
			}
		})
	}
}

func TestDecode_WithoutSecondaryHeader(t *testing.T) {
	packet, _ := ccsds.Encode(ccsds.NewHeader(ccsds.TM, ccsds.IdleAPID, 0, false), []byte{0xAA, 0xBB, 0, 0})
	p, err := Decode(withCRC(packet))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Header != (Header{}) {
		t.Errorf("expected zero PUS header, got %+v", p.Header)
	}
	if !bytes.Equal(p.Data, []byte{0xAA, 0xBB}) {
		t.Errorf("data mismatch: % X", p.Data)
	}
}

func TestDecode_DataDoesNotAliasInput(t *testing.T) {
	encoded := NewTelecommand(1, 0, 8, 1, AckNone, 0, []byte{1, 2, 3}).MustPack()
	p, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	encoded[ccsds.HeaderSize+tcHeaderSizeC] = 0xEE
	if p.Data[0] != 1 {
		t.Error("decoded data aliases the input buffer")
	}
}

// ============================================================
// Time Code Tests
// ============================================================

func TestCDSTime(t *testing.T) {
	in := time.Date(1958, time.January, 2, 0, 0, 1, 500*int(time.Millisecond), time.UTC)
	c := NewCDSTime(in)
	if c.Days != 1 || c.MillisOfDay != 1500 {
		t.Errorf("expected day 1 ms 1500, got %+v", c)
	}
	if !c.Time().Equal(in) {
		t.Errorf("Time() = %v, want %v", c.Time(), in)
	}

	if c := NewCDSTime(time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)); c != (CDSTime{}) {
		t.Errorf("times before the epoch should clamp to zero, got %+v", c)
	}
}

// ============================================================
// Service Payload Tests
// ============================================================

func TestVerificationReport_RoundTrip(t *testing.T) {
	tc := ccsds.NewHeader(ccsds.TC, 0x073, 1234, true)

	for sub := uint8(SubAcceptanceSuccess); sub <= SubCompletionFailure; sub++ {
		report, err := NewVerificationReport(0x073, 9, tc, sub, 3, 0xBEEF)
		if err != nil {
			t.Fatalf("subservice %d: %v", sub, err)
		}
		decoded, err := Decode(report.MustPack())
		if err != nil {
			t.Fatalf("subservice %d: Decode failed: %v", sub, err)
		}
		r, err := ParseVerificationReport(decoded)
		if err != nil {
			t.Fatalf("subservice %d: ParseVerificationReport failed: %v", sub, err)
		}

		if r.APID() != 0x073 || r.SequenceCount() != 1234 {
			t.Errorf("subservice %d: request mismatch apid=0x%03X seq=%d", sub, r.APID(), r.SequenceCount())
		}
		if r.Success() != (sub%2 == 1) {
			t.Errorf("subservice %d: Success() = %v", sub, r.Success())
		}
		if r.IsProgress() && r.Step != 3 {
			t.Errorf("subservice %d: step %d", sub, r.Step)
		}
		if !r.Success() && r.ErrorCode != 0xBEEF {
			t.Errorf("subservice %d: error code 0x%04X", sub, r.ErrorCode)
		}
		if r.Success() && r.ErrorCode != 0 {
			t.Errorf("subservice %d: success report carries error code", sub)
		}
	}
}

func TestVerificationReport_Errors(t *testing.T) {
	if _, err := ParseVerificationReport(NewPingReply(1, 0, 0)); !errors.Is(err, ErrWrongService) {
		t.Errorf("expected ErrWrongService, got %v", err)
	}

	short := NewTelemetry(1, 0, ServiceVerification, SubAcceptanceFailure, 0, []byte{0x18, 0x73, 0xC0, 0x01})
	if _, err := ParseVerificationReport(short); !errors.Is(err, ErrPayloadLength) {
		t.Errorf("expected ErrPayloadLength, got %v", err)
	}

	unknown := NewTelemetry(1, 0, ServiceVerification, 9, 0, []byte{0x18, 0x73, 0xC0, 0x01})
	if _, err := ParseVerificationReport(unknown); !errors.Is(err, ErrFieldRange) {
		t.Errorf("expected ErrFieldRange, got %v", err)
	}
}

func TestVerificationReport_FailureData(t *testing.T) {
	data := []byte{0x18, 0x73, 0xC0, 0x01, 0x00, 0x05, 0xDE, 0xAD}
	r, err := ParseVerificationReport(NewTelemetry(1, 0, ServiceVerification, SubStartFailure, 0, data))
	if err != nil {
		t.Fatalf("ParseVerificationReport failed: %v", err)
	}
	if r.ErrorCode != 5 || !bytes.Equal(r.FailureData, []byte{0xDE, 0xAD}) {
		t.Errorf("unexpected failure fields: code=%d data=% X", r.ErrorCode, r.FailureData)
	}
}

func TestEvent_RoundTrip(t *testing.T) {
	want := Event{Severity: SubEventHighSeverity, ID: 0x0101, ReporterID: 0xCAFEBABE, Param1: 1, Param2: 0xFFFFFFFF}
	p, err := NewEvent(0x40, 1, want)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	decoded, err := Decode(p.MustPack())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, err := ParseEvent(decoded)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if *got != want {
		t.Errorf("event mismatch: got %+v, want %+v", *got, want)
	}

	if _, err := NewEvent(0x40, 1, Event{Severity: 7}); !errors.Is(err, ErrFieldRange) {
		t.Errorf("expected ErrFieldRange, got %v", err)
	}
}

func TestIsPingReply(t *testing.T) {
	if !IsPingReply(NewPingReply(1, 0, 0)) {
		t.Error("ping reply not recognised")
	}
	if IsPingReply(NewPing(1, 0, 0)) {
		t.Error("ping request mistaken for reply")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatSubservice(t *testing.T) {
	tests := []struct {
		service, subservice uint8
		expected            string
	}{
		{1, 1, "ACCEPTANCE_SUCCESS"},
		{1, 8, "COMPLETION_FAILURE"},
		{5, 4, "EVENT_HIGH"},
		{17, 1, "PING"},
		{17, 128, "TRIGGER_EVENT"},
		{3, 25, "HOUSEKEEPING_25"},
		{200, 1, "UNKNOWN_1"},
	}
	for _, tt := range tests {
		if got := FormatSubservice(tt.service, tt.subservice); got != tt.expected {
			t.Errorf("FormatSubservice(%d, %d) = %q, want %q", tt.service, tt.subservice, got, tt.expected)
		}
	}
}

func TestFormatPacket(t *testing.T) {
	tc := ccsds.NewHeader(ccsds.TC, 0x073, 12, true)
	report, _ := NewVerificationReport(0x073, 1, tc, SubProgressFailure, 2, 7)
	report.Received = time.Date(2025, 1, 1, 10, 11, 12, 0, time.UTC)

	out := FormatPacket(report)
	for _, want := range []string{"10:11:12.000", "TM[1,6]", "PROGRESS_FAILURE", "seq=12", "Step: 2", "Error Code: 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatPacket output missing %q:\n%s", want, out)
		}
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidatePacket_Valid(t *testing.T) {
	report, _ := NewVerificationReport(1, 0, ccsds.NewHeader(ccsds.TC, 1, 0, true), SubCompletionSuccess, 0, 0)
	if errs := ValidatePacket(report); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if errs := ValidatePacket(NewPingReply(1, 0, 0)); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidatePacket_Anomalies(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   AnomalyType
	}{
		{"short report", NewTelemetry(1, 0, ServiceVerification, SubStartFailure, 0, []byte{0x18, 0x01}), AnomalyLengthMismatch},
		{"unknown verification subservice", NewTelemetry(1, 0, ServiceVerification, 12, 0, nil), AnomalyUnknownSubservice},
		{"report for telemetry", NewTelemetry(1, 0, ServiceVerification, SubAcceptanceSuccess, 0, []byte{0x08, 0x01, 0xC0, 0x00}), AnomalyInvalidValue},
		{"progress step zero", NewTelemetry(1, 0, ServiceVerification, SubProgressSuccess, 0, []byte{0x18, 0x01, 0xC0, 0x00, 0x00}), AnomalyInvalidValue},
		{"short event", NewTelemetry(1, 0, ServiceEvent, SubEventInfo, 0, []byte{1}), AnomalyLengthMismatch},
		{"unknown test subservice", NewTelemetry(1, 0, ServiceTest, 99, 0, nil), AnomalyUnknownSubservice},
		{"telecommand on downlink", NewPing(1, 0, 0), AnomalyUnexpectedDirection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidatePacket(tt.packet)
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Type != tt.want {
				t.Errorf("expected %v, got %v", tt.want, errs[0].Type)
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update(nil, ErrChecksum, nil)
	s.Update(nil, ccsds.ErrLengthMismatch, nil)
	s.AddFramingError()

	short := NewTelemetry(1, 0, ServiceEvent, SubEventInfo, 0, nil)
	s.Update(short, nil, ValidatePacket(short))

	s.Update(NewPingReply(1, 1, 0), nil, nil)

	if s.TotalPackets != 4 {
		t.Errorf("TotalPackets = %d, want 4", s.TotalPackets)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 || s.FramingErrors != 1 {
		t.Errorf("error counters: crc=%d decode=%d framing=%d", s.CRCErrors, s.DecodeErrors, s.FramingErrors)
	}
	if s.MalformedPackets != 1 || s.LengthMismatches != 1 {
		t.Errorf("malformed=%d length=%d", s.MalformedPackets, s.LengthMismatches)
	}
	if s.ValidPackets != 1 {
		t.Errorf("ValidPackets = %d, want 1", s.ValidPackets)
	}
	if s.Errors() != 4 {
		t.Errorf("Errors() = %d, want 4", s.Errors())
	}
	if !strings.Contains(s.String(), "CRC Errors:") {
		t.Error("summary missing CRC line")
	}

	snap := s.Snapshot()
	if snap.TotalPackets != s.TotalPackets || snap.Errors != 4 || snap.ValidPackets != 1 {
		t.Errorf("Snapshot = %+v", snap)
	}

	s.Reset()
	if s.TotalPackets != 0 || s.Errors() != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestStatistics_SequenceGaps(t *testing.T) {
	s := NewStatistics()
	for _, seq := range []uint16{10, 11, 14, 15} {
		s.Update(NewPingReply(0x20, seq, 0), nil, nil)
	}
	// Other APIDs count independently
	s.Update(NewPingReply(0x21, 500, 0), nil, nil)
	// Wrap is not a gap
	s.Update(NewPingReply(0x22, ccsds.MaxSequence, 0), nil, nil)
	s.Update(NewPingReply(0x22, 0, 0), nil, nil)

	if s.SequenceGaps != 1 || s.LostPackets != 2 {
		t.Errorf("gaps=%d lost=%d, want 1 and 2", s.SequenceGaps, s.LostPackets)
	}
}
