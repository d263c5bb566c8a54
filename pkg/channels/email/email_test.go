package email

import (
	"errors"
	"net/textproto"
	"testing"

	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
)

func TestClassifySMTPCodes(t *testing.T) {
	cases := []struct {
		code int
		want delivery.FailureKind
	}{
		{550, delivery.KindUnknownRecipient},
		{551, delivery.KindUnknownRecipient},
		{535, delivery.KindPermissionDenied},
		{530, delivery.KindPermissionDenied},
		{421, delivery.KindTransient},
		{450, delivery.KindTransient},
		{552, delivery.KindTerminal},
	}
	for _, tc := range cases {
		err := classify(&textproto.Error{Code: tc.code, Msg: "smtp"})
		if got := delivery.Classify(err); got != tc.want {
			t.Errorf("code %d classified as %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestClassifyNetworkErrorsAreTransient(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	if got := delivery.Classify(err); got != delivery.KindTransient {
		t.Errorf("expected transient, got %s", got)
	}
}

func TestStripReply(t *testing.T) {
	body := "done with the report\r\n" +
		"\r\n" +
		"On Mon, Sep 1, 2025 someone wrote:\r\n" +
		"> earlier message\r\n" +
		"> more quoting\r\n" +
		"--\r\n" +
		"sig line\r\n"
	got := stripReply(body)
	if got != "done with the report" {
		t.Errorf("unexpected strip result: %q", got)
	}
}

func TestStripReplyKeepsMultilineContent(t *testing.T) {
	got := stripReply("line one\nline two")
	if got != "line one\nline two" {
		t.Errorf("unexpected strip result: %q", got)
	}
}

func TestIsAllowedDomainEntry(t *testing.T) {
	c := &Channel{config: config.EmailConfig{AllowFrom: []string{"@example.com", "boss@other.org"}}}

	if !c.isAllowed("user@example.com") {
		t.Error("domain entry should allow any mailbox at the domain")
	}
	if !c.isAllowed("boss@other.org") {
		t.Error("exact address should be allowed")
	}
	if c.isAllowed("user@other.org") {
		t.Error("unlisted address should be rejected")
	}
}

func TestIsAllowedEmptyListAllowsAll(t *testing.T) {
	c := &Channel{}
	if !c.isAllowed("anyone@anywhere.net") {
		t.Error("empty allowlist should allow everyone")
	}
}
