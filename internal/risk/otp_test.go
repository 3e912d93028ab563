package risk

import "testing"

func TestDetectOTPFraud(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		increment int
	}{
		{"Plain request", "Please share OTP to proceed", 40},
		{"Request with urgency", "Share the OTP immediately or account closes", 60},
		{"Bare token next to code", "Your OTP 482913 must not be shared with anyone", 40},
		{"Code without OTP language", "Your delivery code is 482913", 0},
		{"Innocent message", "See you at dinner", 0},
		{"Empty input", "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectOTPFraud(tt.text)
			if result.RiskIncrement != tt.increment {
				t.Errorf("DetectOTPFraud(%q) = %d, want %d", tt.text, result.RiskIncrement, tt.increment)
			}
		})
	}
}

func TestDetectOTPFraud_CapturesCodes(t *testing.T) {
	result := DetectOTPFraud("Enter OTP 482913 now")
	if len(result.Codes) != 1 || result.Codes[0] != "482913" {
		t.Errorf("Expected the numeric code to be captured, got %v", result.Codes)
	}
	if result.RiskIncrement != 60 {
		t.Errorf("Expected 60 with the urgency word, got %d", result.RiskIncrement)
	}
}
