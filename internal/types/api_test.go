package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"sessions create", Request{Cmd: CmdSessionsCreate}, ""},
		{"sessions list", Request{Cmd: CmdSessionsList}, ""},
		{"missing cmd", Request{}, "cmd is required"},
		{"unknown cmd", Request{Cmd: "request.get"}, "Unknown command"},
		{"destroy needs session", Request{Cmd: CmdSessionsDestroy}, "session is required"},
		{"open relative", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "/home"}, ""},
		{"open about", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "about:blank"}, ""},
		{"open javascript", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "javascript:alert(1)"}, "url scheme"},
		{"open with auth", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "/", Auth: &Auth{Login: "alice", Secret: "s3cr3t"}}, ""},
		{"auth without secret", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "/", Auth: &Auth{Login: "alice"}}, "secret is required"},
		{"auth bad domain", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "/", Auth: &Auth{Domain: "a.com/x", Secret: "x"}}, "host name"},
		{"auth on back", Request{Cmd: CmdPageBack, Session: "s-12345678", Auth: &Auth{Secret: "x"}}, "only supported"},
		{"download by selector", Request{Cmd: CmdFileDownload, Session: "s-12345678", Selector: "#export"}, ""},
		{"download by url", Request{Cmd: CmdFileDownload, Session: "s-12345678", URL: "/report.pdf"}, ""},
		{"download needs one trigger", Request{Cmd: CmdFileDownload, Session: "s-12345678"}, "exactly one"},
		{"download both triggers", Request{Cmd: CmdFileDownload, Session: "s-12345678", URL: "/x", Selector: "#x"}, "exactly one"},
		{"negative timeout", Request{Cmd: CmdFileDownload, Session: "s-12345678", Selector: "#x", MaxTimeout: -1}, "negative"},
		{"huge timeout", Request{Cmd: CmdFileDownload, Session: "s-12345678", Selector: "#x", MaxTimeout: MaxTimeoutMs + 1}, "exceeds maximum"},
		{"long url", Request{Cmd: CmdPageOpen, Session: "s-12345678", URL: "/" + strings.Repeat("a", MaxURLLength)}, "url exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	r := Request{}
	if got := r.Timeout(4 * time.Second); got != 4*time.Second {
		t.Errorf("Timeout() = %v, want default", got)
	}
	r.MaxTimeout = 1500
	if got := r.Timeout(4 * time.Second); got != 1500*time.Millisecond {
		t.Errorf("Timeout() = %v, want 1.5s", got)
	}
}

func TestRequestDeserialization(t *testing.T) {
	body := `{"cmd":"file.download","session":"s-12345678","selector":"#export","filter":"ext:pdf","maxTimeout":8000}`
	var r Request
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if r.Cmd != CmdFileDownload || r.Selector != "#export" || r.Filter != "ext:pdf" || r.MaxTimeout != 8000 {
		t.Errorf("decoded %+v", r)
	}
}

func TestResponseOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Response{Status: StatusOK, Message: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"file"`, `"downloads"`, `"sessions"`, `"session"`} {
		if strings.Contains(string(data), field) {
			t.Errorf("empty response contains %s: %s", field, data)
		}
	}
	for _, field := range []string{`"status"`, `"startTimestamp"`, `"endTimestamp"`, `"version"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("response missing %s: %s", field, data)
		}
	}
}
