package models

import (
	"encoding/json"
	"testing"
)

func TestNewLinkAuditMetadata_AllFields(t *testing.T) {
	md := NewLinkAuditMetadata("ABC123", LinkStatusInitiated, LinkStatusChildApproved)

	if md["link_code"] != "ABC123" {
		t.Errorf("expected link_code ABC123, got %v", md["link_code"])
	}
	if md["from_status"] != "INITIATED" {
		t.Errorf("expected from_status INITIATED, got %v", md["from_status"])
	}
	if md["to_status"] != "CHILD_APPROVED" {
		t.Errorf("expected to_status CHILD_APPROVED, got %v", md["to_status"])
	}
}

func TestNewLinkAuditMetadata_OmitsEmptyFields(t *testing.T) {
	md := NewLinkAuditMetadata("", "", LinkStatusInitiated)

	if _, ok := md["link_code"]; ok {
		t.Error("link_code should be omitted when empty")
	}
	if _, ok := md["from_status"]; ok {
		t.Error("from_status should be omitted when empty")
	}
	if len(md) != 1 {
		t.Errorf("expected 1 entry, got %d", len(md))
	}
}

func TestAuditMetadata_ScanAcceptsBytesAndString(t *testing.T) {
	var fromBytes AuditMetadata
	if err := fromBytes.Scan([]byte(`{"to_status":"REJECTED"}`)); err != nil {
		t.Fatalf("Scan([]byte) = %v", err)
	}
	if fromBytes["to_status"] != "REJECTED" {
		t.Errorf("unexpected value %v", fromBytes["to_status"])
	}

	var fromString AuditMetadata
	if err := fromString.Scan(`{"to_status":"EXPIRED"}`); err != nil {
		t.Fatalf("Scan(string) = %v", err)
	}
	if fromString["to_status"] != "EXPIRED" {
		t.Errorf("unexpected value %v", fromString["to_status"])
	}

	var fromNil AuditMetadata
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) = %v", err)
	}
	if fromNil == nil || len(fromNil) != 0 {
		t.Errorf("expected empty metadata, got %v", fromNil)
	}
}

func TestAuditMetadata_ScanRejectsUnknownType(t *testing.T) {
	var md AuditMetadata
	if err := md.Scan(42); err != ErrBadRequest {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestAuditMetadata_ValueRoundTrip(t *testing.T) {
	md := AuditMetadata{"link_code": "XYZ"}
	v, err := md.Value()
	if err != nil {
		t.Fatalf("Value() = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(v.([]byte), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["link_code"] != "XYZ" {
		t.Errorf("unexpected value %v", decoded["link_code"])
	}
}
