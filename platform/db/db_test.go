package db

import "testing"

type testDBConfig struct {
	url      string
	maxConns int32
}

func (c testDBConfig) GetDatabaseURL() string     { return c.url }
func (c testDBConfig) GetDatabaseMaxConns() int32 { return c.maxConns }

func TestPoolConfigDefaults(t *testing.T) {
	pc, err := poolConfigFor(testDBConfig{url: "postgres://u:p@localhost:5432/outreach"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pc.MaxConns != defaultMaxConns || pc.MinConns != 1 {
		t.Fatalf("expected default pool bounds, got max=%d min=%d", pc.MaxConns, pc.MinConns)
	}
	if pc.ConnConfig.RuntimeParams["application_name"] != applicationName {
		t.Fatalf("expected application_name %q, got %q", applicationName, pc.ConnConfig.RuntimeParams["application_name"])
	}
}

func TestPoolConfigKeepsExplicitSettings(t *testing.T) {
	pc, err := poolConfigFor(testDBConfig{url: "postgres://u:p@localhost:5432/outreach?application_name=ops", maxConns: 4})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pc.MaxConns != 4 {
		t.Fatalf("expected max conns 4, got %d", pc.MaxConns)
	}
	if pc.ConnConfig.RuntimeParams["application_name"] != "ops" {
		t.Fatalf("expected url application_name to win, got %q", pc.ConnConfig.RuntimeParams["application_name"])
	}
}

func TestPoolConfigRejectsBadURL(t *testing.T) {
	if _, err := poolConfigFor(testDBConfig{url: "postgres://%zz"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
