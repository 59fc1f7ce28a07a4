package config

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		in       string
		nilPoint bool
		err      bool
		lat, lon float64
		alt      float64
	}{
		{in: "", nilPoint: true},
		{in: "45,7", lat: 45, lon: 7},
		{in: " 45.5 , -73.6 , 30 ", lat: 45.5, lon: -73.6, alt: 30},
		{in: "45", err: true},
		{in: "91,0", err: true},
		{in: "0,181", err: true},
		{in: "a,b", err: true},
		{in: "1,2,3,4", err: true},
	}

	for _, c := range cases {
		p, err := ParseLocation(c.in)
		if c.err {
			if err == nil {
				t.Fatalf("%q should fail", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if c.nilPoint {
			if p != nil {
				t.Fatalf("%q should give no location, not %v", c.in, p)
			}
			continue
		}
		if p.Latitude != c.lat || p.Longitude != c.lon || p.Altitude != c.alt {
			t.Fatalf("%q should be %v,%v,%v, not %v", c.in, c.lat, c.lon, c.alt, p)
		}
	}
}

func TestLogger(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)

	entry := conf.Logger()
	if p := entry.Data["prefix"]; p != "geocast" {
		t.Fatalf("prefix should be geocast, not %v", p)
	}

	if LogLevel("warn") != logrus.WarnLevel {
		t.Fatal("warn should parse to WarnLevel")
	}
	if LogLevel("bogus") != logrus.DebugLevel {
		t.Fatal("unknown levels should default to DebugLevel")
	}
}
