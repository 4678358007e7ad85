package dosing

import "testing"

func TestInferDoseRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *DoseRange
		wantOK  bool
	}{
		{"hyphen range", "Take 1-2 tablets every 4 hours as needed for pain", &DoseRange{Min: 1, Max: 2}, true},
		{"spaced hyphen", "take 1 - 2 capsules daily", &DoseRange{Min: 1, Max: 2}, true},
		{"to separator", "apply 0.5 to 1 application at bedtime", &DoseRange{Min: 0.5, Max: 1}, true},
		{"no range", "Take 1 tablet by mouth once daily", nil, false},
		{"frequency span is not a dose range", "Take 1 tablet every 4-6 hours as needed", nil, false},
		{"dose range wins over frequency span", "Take 1-2 tablets every 4-6 hours as needed", &DoseRange{Min: 1, Max: 2}, true},
		{"day span is not a dose range", "take 1 capsule for 7-10 days", nil, false},
		{"inverted pair rejected", "take 2-1 tablets", nil, false},
		{"equal pair rejected", "take 2-2 tablets", nil, false},
		{"empty text", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := InferDoseRange(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("InferDoseRange() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && (got.Min != tt.want.Min || got.Max != tt.want.Max) {
				t.Errorf("InferDoseRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
