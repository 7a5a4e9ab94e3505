package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const faultBody = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:sf="urn:fault.partner.soap.sforce.com">
<soapenv:Body><soapenv:Fault><faultcode>INVALID_LOGIN</faultcode>
<faultstring>INVALID_LOGIN: Invalid username, password, security token; or user locked out.</faultstring>
</soapenv:Fault></soapenv:Body></soapenv:Envelope>`

func loginBody(serverURL string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns="urn:partner.soap.sforce.com">
<soapenv:Body><loginResponse><result>
<serverUrl>` + serverURL + `/services/Soap/u/59.0/00D000000000001</serverUrl>
<sessionId>SESSION!abc</sessionId>
</result></loginResponse></soapenv:Body></soapenv:Envelope>`
}

func TestQueryAllLogsInAndFollowsNextRecordsURL(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	var logins int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/services/Soap/u/59.0":
			logins++
			raw, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(raw), "<n1:username>ops@example.com</n1:username>") {
				t.Fatalf("unexpected login body: %s", raw)
			}
			if !strings.Contains(string(raw), "<n1:password>p&amp;ssTOKEN</n1:password>") {
				t.Fatalf("password and token not concatenated/escaped: %s", raw)
			}
			_, _ = io.WriteString(w, loginBody(srv.URL))
		case r.URL.Path == "/services/data/v59.0/query":
			if got := r.Header.Get("Authorization"); got != "Bearer SESSION!abc" {
				t.Fatalf("unexpected auth header: %s", got)
			}
			if got := r.URL.Query().Get("q"); got != "SELECT Id FROM Account" {
				t.Fatalf("unexpected soql: %s", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"totalSize":      3,
				"done":           false,
				"nextRecordsUrl": "/services/data/v59.0/query/01g-2000",
				"records": []map[string]any{
					{"attributes": map[string]any{"type": "Account"}, "Id": "001", "Identifier__c": "A1"},
					{"attributes": map[string]any{"type": "Account"}, "Id": "002", "Identifier__c": "A2"},
				},
			})
		case r.URL.Path == "/services/data/v59.0/query/01g-2000":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"totalSize": 3,
				"done":      true,
				"records":   []map[string]any{{"Id": "003", "Identifier__c": "A3"}},
			})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := New(Config{Username: "ops@example.com", Password: "p&ss", SecurityToken: "TOKEN", LoginURL: srv.URL})
	records, err := client.QueryAll(context.Background(), "SELECT Id FROM Account")
	if err != nil {
		t.Fatalf("QueryAll error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[2]["Id"] != "003" || records[0]["Identifier__c"] != "A1" {
		t.Fatalf("unexpected records: %#v", records)
	}

	if _, err := client.QueryAll(context.Background(), "SELECT Id FROM Account"); err != nil {
		t.Fatalf("second QueryAll error = %v", err)
	}
	if logins != 1 {
		t.Fatalf("expected session reuse, got %d logins", logins)
	}
}

func TestLoginSurfacesSOAPFault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, faultBody)
	}))
	defer srv.Close()

	client := New(Config{Username: "u", Password: "p", LoginURL: srv.URL})
	_, err := client.QueryAll(context.Background(), "SELECT Id FROM Account")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "INVALID_LOGIN") {
		t.Fatalf("fault string not surfaced: %v", err)
	}
}

func TestQueryAllReportsAPIError(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/services/Soap/") {
			_, _ = io.WriteString(w, loginBody(srv.URL))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"message":"No such column 'Identifier__c' on entity 'Account'","errorCode":"INVALID_FIELD"}]`)
	}))
	defer srv.Close()

	client := New(Config{Username: "u", Password: "p", LoginURL: srv.URL, APIVersion: "v59.0"})
	_, err := client.QueryAll(context.Background(), "SELECT Id, Identifier__c FROM Account")
	if err == nil {
		t.Fatalf("expected query error")
	}
	if !strings.Contains(err.Error(), "INVALID_FIELD") || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoginBaseDefaultsToDomain(t *testing.T) {
	t.Parallel()

	if got := New(Config{}).loginBase(); got != "https://login.salesforce.com" {
		t.Fatalf("unexpected default base: %s", got)
	}
	if got := New(Config{Domain: "test"}).loginBase(); got != "https://test.salesforce.com" {
		t.Fatalf("unexpected sandbox base: %s", got)
	}
}

func TestExplicitLoginIsReusedAndNumbersKeepPrecision(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	var logins int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/services/Soap/") {
			logins++
			_, _ = io.WriteString(w, loginBody(srv.URL))
			return
		}
		_, _ = io.WriteString(w, `{"totalSize":1,"done":true,"records":[{"Id":"001","Identifier__c":1234567}]}`)
	}))
	defer srv.Close()

	client := New(Config{Username: "u", Password: "p", LoginURL: srv.URL})
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login error = %v", err)
	}
	records, err := client.QueryAll(context.Background(), "SELECT Id, Identifier__c FROM Account")
	if err != nil {
		t.Fatalf("QueryAll error = %v", err)
	}
	if logins != 1 {
		t.Fatalf("expected QueryAll to reuse the explicit session, got %d logins", logins)
	}
	if got, ok := records[0]["Identifier__c"].(json.Number); !ok || got.String() != "1234567" {
		t.Fatalf("expected json.Number 1234567, got %#v", records[0]["Identifier__c"])
	}
}
