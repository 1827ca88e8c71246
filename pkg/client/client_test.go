package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/ctc/pkg/client"
	"github.com/loomworks/ctc/pkg/policy"
)

func newClient(t *testing.T, ts *httptest.Server) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		BaseURL:            ts.URL,
		AuthToken:          "tok-1",
		VerifyCertificates: true,
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := client.New(client.Options{})
	require.ErrorContains(t, err, "base URL is required")
}

func TestListPolicies_Envelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/endpoint-policies", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok-1", r.Header.Get("AuthToken"))
		io.WriteString(w, `{"endpoint_policies": [
			{"id": "ct-1", "label": "web", "policy_type_name": "batch", "visible": true,
			 "attributes": {"subpolicies": ["p-1"]}},
			{"id": "p-1", "label": "web (pipeline)", "policy_type_name": "pipeline",
			 "attributes": {"first_subpolicy": "prim-1", "second_subpolicy": null}}
		]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	policies, err := c.ListPolicies(context.Background(), "bp-1")
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "ct-1", policies[0].ID)
	assert.True(t, policies[0].Visible)
	assert.Equal(t, []string{"p-1"}, policies[0].SubpolicyIDs())
}

func TestListPolicies_BareList(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id": "ct-1", "label": "web", "policy_type_name": "batch", "visible": true}]`)
	}))
	defer ts.Close()

	c := newClient(t, ts)
	policies, err := c.ListPolicies(context.Background(), "bp-1")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "web", policies[0].Label)
}

func TestExportPolicies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/obj-policy-export/ct-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		io.WriteString(w, `{"policies": [
			{"id": "prim-1", "label": "link1", "policy_type_name": "AttachLogicalLink",
			 "attributes": {"ipv4_addressing_type": "numbered"}}
		]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	policies, err := c.ExportPolicies(context.Background(), "bp-1", "ct-1")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "AttachLogicalLink", policies[0].PolicyTypeName)
}

func TestImportPolicies(t *testing.T) {
	var got []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/obj-policy-import", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	payload := policy.WrapPolicies([]policy.Policy{
		{ID: "ct-1", PolicyTypeName: policy.TypeBatch, Label: "web", Visible: true},
	})
	require.NoError(t, c.ImportPolicies(context.Background(), "bp-1", payload))

	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal(got, &decoded))
	require.Len(t, decoded["policies"], 1)
	assert.Equal(t, "ct-1", decoded["policies"][0]["id"])
}

func TestDeletePolicy_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors": "no such policy"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c := newClient(t, ts)
	err := c.DeletePolicy(context.Background(), "bp-1", "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, policy.ErrNotFound))

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "no such policy")
}

func TestAPIError_OnlyNotFoundMatches(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newClient(t, ts)
	err := c.DeletePolicy(context.Background(), "bp-1", "ct-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, policy.ErrNotFound))
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestPatchPolicyAttributes(t *testing.T) {
	var got []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/endpoint-policies/prim-9", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		got, _ = io.ReadAll(r.Body)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	err := c.PatchPolicyAttributes(context.Background(), "bp-1", "prim-9",
		map[string]any{"rp_to_attach": "rp-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"attributes": {"rp_to_attach": "rp-1"}}`, string(got))
}

func TestBatchApply(t *testing.T) {
	var got []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/obj-policy-batch-apply", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		got, _ = io.ReadAll(r.Body)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	payload := policy.NewBatchApply("ct-1", nil, []string{"if-1", "if-2"})
	require.NoError(t, c.BatchApply(context.Background(), "bp-1", payload))
	assert.JSONEq(t, `{"application_points": [
		{"id": "if-1", "policies": [{"policy": "ct-1", "used": false}]},
		{"id": "if-2", "policies": [{"policy": "ct-1", "used": false}]}
	]}`, string(got))
}

func TestApplicationPoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blueprints/bp-1/endpoint-policies/ct-1/application-points", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"application_points": {"children": [
			{"type": "system", "id": "sys-1", "children": [
				{"type": "interface", "id": "if-1", "policies": [{"policy": "ct-1", "state": "used"}]}
			]}
		]}}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts)
	tree, err := c.ApplicationPoints(context.Background(), "bp-1", "ct-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"if-1"}, policy.AssignedPoints(tree, "ct-1"))
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"username": "admin", "password": "secret"}`, string(body))
		io.WriteString(w, `{"token": "fresh-token", "id": "user-1"}`)
	})
	mux.HandleFunc("/api/blueprints/bp-1/endpoint-policies", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fresh-token", r.Header.Get("AuthToken"))
		io.WriteString(w, `[]`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := client.New(client.Options{BaseURL: ts.URL, VerifyCertificates: true})
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), "admin", "secret"))

	_, err = c.ListPolicies(context.Background(), "bp-1")
	require.NoError(t, err)
}

func TestLogin_NoToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": "user-1"}`)
	}))
	defer ts.Close()

	c, err := client.New(client.Options{BaseURL: ts.URL, VerifyCertificates: true})
	require.NoError(t, err)
	err = c.Login(context.Background(), "admin", "secret")
	require.ErrorContains(t, err, "response carries no token")
}

func TestCheckVersion(t *testing.T) {
	version := `{"version": "4.1.2", "build": "0"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, version)
	}))
	defer ts.Close()

	c := newClient(t, ts)

	got, err := c.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.1.2", got)

	require.NoError(t, c.CheckVersion(context.Background(), "4.1.0"))

	err = c.CheckVersion(context.Background(), "4.2.0")
	require.ErrorContains(t, err, "older than the minimum supported")

	version = `{"version": "not-a-version"}`
	err = c.CheckVersion(context.Background(), "4.1.0")
	require.ErrorContains(t, err, "invalid server version")
}
