package templates

import "testing"

func TestParseIdentifierBareID(t *testing.T) {
	id, err := ParseIdentifier("code-reviewer")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != (Identifier{ID: "code-reviewer"}) {
		t.Fatalf("unexpected identifier: %+v", id)
	}
}

func TestParseIdentifierWithVersion(t *testing.T) {
	id, err := ParseIdentifier("code-reviewer@1.2.3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.ID != "code-reviewer" || id.Version != "1.2.3" || id.Publisher != "" {
		t.Fatalf("unexpected identifier: %+v", id)
	}
}

func TestParseIdentifierWithPublisherAndLatest(t *testing.T) {
	id, err := ParseIdentifier("acme/code-reviewer@latest")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Publisher != "acme" || id.ID != "code-reviewer" || id.Version != "latest" {
		t.Fatalf("unexpected identifier: %+v", id)
	}
	if id.String() != "acme/code-reviewer@latest" {
		t.Fatalf("unexpected round trip: %s", id.String())
	}
}

func TestParseIdentifierRejectsEmptySegments(t *testing.T) {
	cases := []string{"", "/id", "id@", "acme/"}
	for _, raw := range cases {
		if _, err := ParseIdentifier(raw); err == nil {
			t.Fatalf("expected error parsing %q", raw)
		}
	}
}
