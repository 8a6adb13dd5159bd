package cmd

import "testing"

func TestParseRegion(t *testing.T) {
	region, err := parseRegion("10,20,640x480")
	if err != nil {
		t.Fatalf("parseRegion failed: %v", err)
	}
	if region.X != 10 || region.Y != 20 || region.Width != 640 || region.Height != 480 {
		t.Errorf("Region = %+v", region)
	}

	// Whitespace is tolerated.
	if _, err := parseRegion(" 0, 0, 100x100 "); err != nil {
		t.Errorf("parseRegion with spaces failed: %v", err)
	}

	invalid := []string{
		"",
		"10,20",
		"10,20,640",
		"10,20,640x",
		"a,20,640x480",
		"10,b,640x480",
		"10,20,0x480",
		"10,20,640x-1",
	}
	for _, spec := range invalid {
		if _, err := parseRegion(spec); err == nil {
			t.Errorf("parseRegion(%q) should fail", spec)
		}
	}
}
