package config

import "testing"

func TestStorePasswordRejectsMissingInputs(t *testing.T) {
	c := &Config{}
	if err := c.StorePassword("hunter2"); err == nil {
		t.Fatal("storing without an email must fail")
	}

	c.Email = "a@example.com"
	if err := c.StorePassword(""); err == nil {
		t.Fatal("storing an empty password must fail")
	}
	if err := c.StorePassword("   "); err == nil {
		t.Fatal("storing a blank password must fail")
	}
}

func TestResolvePasswordPrefersConfiguredValue(t *testing.T) {
	c := &Config{Email: "a@example.com", Password: "from-yaml"}
	got, err := c.ResolvePassword()
	if err != nil {
		t.Fatalf("ResolvePassword: %v", err)
	}
	if got != "from-yaml" {
		t.Fatalf("password = %q, want the configured value without a keychain hit", got)
	}
}
