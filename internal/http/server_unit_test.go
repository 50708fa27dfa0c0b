package http

import (
	"strings"
	"testing"
)

func TestClassAddMissingParams(t *testing.T) {
	req := classAddRequest{}
	missing := req.missingParams()
	want := []string{"uid", "cid", "for_duration", "week", "weekday", "classTime"}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, missing)
	}

	req = classAddRequest{
		UID:         "token",
		CID:         "term",
		ForDuration: "period",
		Week:        "1-16",
		Weekday:     "2",
		ClassTime:   "3",
	}
	if missing := req.missingParams(); len(missing) != 0 {
		t.Fatalf("expected no missing params, got %v", missing)
	}
}

func TestClassAddDefaults(t *testing.T) {
	req := classAddRequest{CID: "term-id"}
	req.applyDefaults()
	if req.TableName != "term-id" {
		t.Fatalf("expected table name to default to cid, got %s", req.TableName)
	}
	if req.ClassName != defaultClassName {
		t.Fatalf("expected class name sentinel, got %s", req.ClassName)
	}

	req = classAddRequest{CID: "term-id", TableName: "my table", ClassName: "algebra"}
	req.applyDefaults()
	if req.TableName != "my table" || req.ClassName != "algebra" {
		t.Fatalf("expected provided names to survive defaults, got %s / %s", req.TableName, req.ClassName)
	}
}

func TestDurationAddMissingParams(t *testing.T) {
	req := durationAddRequest{}
	missing := req.missingParams()
	want := []string{"uid", "cid", "data"}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, missing)
	}

	req = durationAddRequest{UID: "token", CID: "group", Data: []durationSlot{{Index: 1, StartTime: 480, EndTime: 525}}}
	if missing := req.missingParams(); len(missing) != 0 {
		t.Fatalf("expected no missing params, got %v", missing)
	}
}

func TestTermAddMissingParams(t *testing.T) {
	req := termAddRequest{UID: "token"}
	missing := req.missingParams()
	if len(missing) != 1 || missing[0] != "ccid" {
		t.Fatalf("expected ccid to be reported, got %v", missing)
	}
}
