package dataurl

import "testing"

func TestAddFailsAfterFinalize(t *testing.T) {
	d := New("https://events.example.com/bill")
	if err := d.AddString("bidder_id", "acme"); err != nil {
		t.Fatalf("unexpected error adding before finalize: %v", err)
	}
	d.Finalize()
	if err := d.AddString("pub_id", "p1"); err == nil {
		t.Fatal("expected add after finalize to fail")
	}
}

func TestURLRequiresFinalize(t *testing.T) {
	d := New("https://events.example.com/bill")
	_ = d.AddString("bidder_id", "acme")
	if _, err := d.URL(true); err == nil {
		t.Fatal("expected URL() to fail before finalize")
	}
	d.Finalize()
	if _, err := d.URL(true); err != nil {
		t.Fatalf("unexpected error after finalize: %v", err)
	}
}

func TestRoundTripRecoversAllFields(t *testing.T) {
	d := New("https://events.example.com/bill")
	_ = d.AddString("bidder_id", "acme")
	_ = d.AddString("endpoint_id", "ep1")
	_ = d.AddInt("bid_timestamp", 1700000000)
	_ = d.AddFloat("cpm_gross", 12.3456)
	d.Finalize()

	raw, err := d.URL(true)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	bidder, err := parsed.GetRequiredString("bidder_id")
	if err != nil || bidder != "acme" {
		t.Fatalf("bidder_id = %q, %v", bidder, err)
	}
	ts, err := parsed.GetRequiredInt("bid_timestamp")
	if err != nil || ts != 1700000000 {
		t.Fatalf("bid_timestamp = %v, %v", ts, err)
	}
	cpm, err := parsed.GetRequiredFloat("cpm_gross")
	if err != nil || cpm != 12.3456 {
		t.Fatalf("cpm_gross = %v, %v", cpm, err)
	}
}

func TestMissingRequiredFieldNamesIt(t *testing.T) {
	d := New("https://events.example.com/bill")
	d.Finalize()
	if _, err := d.GetRequiredString("ad_format"); err == nil {
		t.Fatal("expected error for missing required field")
	}
}
